// Package main implements bridge-cli, a terminal tool for exercising the
// deposit bridge's collaborators directly: query the gateway, broadcast a
// transaction and wait for its InstantSend lock, watch an address for a
// deposit, solve a faucet hash puzzle, or request test funds.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gocarina/gocsv"
	"github.com/urfave/cli/v2"

	"github.com/dashbridge/creditbridge/chain"
	"github.com/dashbridge/creditbridge/errors"
	"github.com/dashbridge/creditbridge/faucet"
	"github.com/dashbridge/creditbridge/model"
	"github.com/dashbridge/creditbridge/pow"
	"github.com/dashbridge/creditbridge/settings"
	"github.com/dashbridge/creditbridge/ulogger"
	"github.com/dashbridge/creditbridge/watcher"
)

const progname = "bridge-cli"

func main() {
	tSettings := settings.NewSettings()
	logger := ulogger.New(progname, ulogger.WithLevel(tSettings.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  progname,
		Usage: "A CLI tool to interact with the deposit bridge's gateway, faucet and solver",
		Commands: []*cli.Command{
			{
				Name:  "height",
				Usage: "Print the best chain height known to the gateway",
				Action: func(c *cli.Context) error {
					return runHeight(c, logger, tSettings)
				},
			},
			{
				Name:  "broadcast",
				Usage: "Broadcast a raw transaction and wait for its InstantSend lock",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tx",
						Usage:    "Raw transaction hex",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "no-wait",
						Usage: "Broadcast without waiting for the lock",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Lock wait timeout, zero for the configured default",
					},
				},
				Action: func(c *cli.Context) error {
					return runBroadcast(c, logger, tSettings)
				},
			},
			{
				Name:  "wait-lock",
				Usage: "Wait for the InstantSend lock covering a txid",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "txid",
						Usage:    "Transaction id to watch",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Lock wait timeout, zero for the configured default",
					},
				},
				Action: func(c *cli.Context) error {
					return runWaitLock(c, logger, tSettings)
				},
			},
			{
				Name:  "watch-deposits",
				Usage: "Wait for the next deposit paying an address",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Receiving address to watch",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:  "min-amount",
						Usage: "Smallest acceptable payment in duffs",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Deposit wait timeout, zero for the configured default",
					},
					&cli.StringFlag{
						Name:  "csv",
						Usage: "Append the deposit to this CSV file",
					},
				},
				Action: func(c *cli.Context) error {
					return runWatchDeposits(c, logger, tSettings)
				},
			},
			{
				Name:  "solve",
				Usage: "Solve a hash puzzle at the given difficulty",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "challenge",
						Usage:    "Challenge string to solve against",
						Required: true,
					},
					&cli.UintFlag{
						Name:  "difficulty",
						Usage: "Difficulty in leading zero bits, zero for the configured default",
					},
				},
				Action: func(c *cli.Context) error {
					return runSolve(c, tSettings)
				},
			},
			{
				Name:  "faucet",
				Usage: "Request test funds from the faucet, solving its gate when required",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Address the faucet should pay",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:  "amount",
						Usage: "Amount in duffs, zero for the faucet default",
					},
				},
				Action: func(c *cli.Context) error {
					return runFaucet(c, logger, tSettings)
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// runHeight asks the gateway for the best height, falling back to the core
// rpc node when the gateway cannot be reached.
func runHeight(c *cli.Context, logger ulogger.Logger, tSettings *settings.Settings) error {
	client, err := chain.NewGatewayClient(c.Context, logger, tSettings)
	if err != nil {
		if tSettings.Chain.RPCURL == nil {
			return err
		}

		logger.Warnf("gateway unreachable, using core rpc: %v", err)

		rpc, rpcErr := chain.NewCoreRPCClient(logger, tSettings)
		if rpcErr != nil {
			return err
		}

		height, rpcErr := rpc.GetBestHeight(c.Context)
		if rpcErr != nil {
			return rpcErr
		}

		fmt.Printf("%d\n", height)

		return nil
	}

	defer func() { _ = client.Disconnect() }()

	height, err := client.GetBestHeight(c.Context)
	if err != nil {
		return err
	}

	fmt.Printf("%d\n", height)

	return nil
}

// runBroadcast submits the transaction through the gateway. Unless told not
// to wait, the subscription for the lock is confirmed active before the
// broadcast goes out, so the lock cannot be missed.
func runBroadcast(c *cli.Context, logger ulogger.Logger, tSettings *settings.Settings) error {
	rawTx, err := hex.DecodeString(strings.TrimSpace(c.String("tx")))
	if err != nil {
		return errors.NewInvalidArgumentError("transaction hex is not valid", err)
	}

	tx, err := model.ParseTransaction(rawTx)
	if err != nil {
		return err
	}

	client, err := chain.NewGatewayClient(c.Context, logger, tSettings)
	if err != nil {
		return err
	}

	defer func() { _ = client.Disconnect() }()

	if c.Bool("no-wait") {
		txid, err := client.Broadcast(c.Context, rawTx)
		if err != nil {
			return err
		}

		fmt.Printf("broadcast %s\n", txid)

		return nil
	}

	opts := &watcher.LockWaitOptions{
		Timeout: c.Duration("timeout"),
		OnReady: func(ctx context.Context) error {
			_, err := client.Broadcast(ctx, rawTx)
			return err
		},
	}

	lock, err := watcher.WaitForInstantLock(c.Context, logger, tSettings, client, &tx.TxID, opts)
	if err != nil {
		return err
	}

	fmt.Printf("locked %s cycle %s inputs %d\n", lock.TxID, lock.CycleHash, len(lock.Inputs))

	return nil
}

// runWaitLock waits for the lock covering a transaction that was already
// broadcast elsewhere.
func runWaitLock(c *cli.Context, logger ulogger.Logger, tSettings *settings.Settings) error {
	txid, err := chainhash.NewHashFromStr(strings.TrimSpace(c.String("txid")))
	if err != nil {
		return errors.NewInvalidArgumentError("txid is not valid", err)
	}

	client, err := chain.NewGatewayClient(c.Context, logger, tSettings)
	if err != nil {
		return err
	}

	defer func() { _ = client.Disconnect() }()

	lock, err := watcher.WaitForInstantLock(c.Context, logger, tSettings, client, txid, &watcher.LockWaitOptions{
		Timeout: c.Duration("timeout"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("locked %s cycle %s inputs %d\n", lock.TxID, lock.CycleHash, len(lock.Inputs))

	return nil
}

// depositRow is the CSV form of one observed deposit.
type depositRow struct {
	Time    string `csv:"time"`
	Address string `csv:"address"`
	TxID    string `csv:"txid"`
	Vout    uint32 `csv:"vout"`
	Amount  uint64 `csv:"amount"`
	Total   uint64 `csv:"total"`
}

func runWatchDeposits(c *cli.Context, logger ulogger.Logger, tSettings *settings.Settings) error {
	address := strings.TrimSpace(c.String("address"))

	pubKeyHash, err := model.PubKeyHashFromAddress(address, tSettings.ChainCfgParams)
	if err != nil {
		return err
	}

	clientFactory := watcher.ClientFactory(func(ctx context.Context) (chain.ClientI, error) {
		return chain.NewGatewayClient(ctx, logger, tSettings)
	})

	params := &watcher.DepositParams{
		PubKeyHash: pubKeyHash,
		MinAmount:  c.Uint64("min-amount"),
		Timeout:    c.Duration("timeout"),
	}

	fmt.Printf("waiting for a deposit to %s\n", address)

	result, err := watcher.WaitForDeposit(c.Context, logger, tSettings, clientFactory, params)
	if err != nil {
		return err
	}

	if result.TimedOut {
		if result.SetupErr != nil {
			return errors.NewProcessingError("no deposit arrived, last connection failure", result.SetupErr)
		}

		return errors.NewProcessingError("no deposit arrived before the timeout")
	}

	fmt.Printf("deposit %s amount %d total %d\n", result.UTXO.Outpoint(), result.UTXO.Satoshis, result.TotalAmount)

	if path := c.String("csv"); path != "" {
		if err := appendDepositCSV(path, address, result); err != nil {
			return err
		}

		logger.Infof("recorded deposit in %s", path)
	}

	return nil
}

// appendDepositCSV loads any rows already in path, appends the new deposit
// and rewrites the file, so repeated runs build up a log.
func appendDepositCSV(path, address string, result *watcher.DepositResult) error {
	rows := make([]*depositRow, 0, 8)

	if f, err := os.Open(path); err == nil {
		err = gocsv.UnmarshalFile(f, &rows)

		_ = f.Close()

		if err != nil {
			return errors.NewProcessingError("failed to read existing rows from %s", path, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	rows = append(rows, &depositRow{
		Time:    time.Now().UTC().Format(time.RFC3339),
		Address: address,
		TxID:    result.UTXO.TxID.String(),
		Vout:    result.UTXO.Vout,
		Amount:  result.UTXO.Satoshis,
		Total:   result.TotalAmount,
	})

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	return gocsv.MarshalFile(&rows, f)
}

func runSolve(c *cli.Context, tSettings *settings.Settings) error {
	difficulty := tSettings.PoW.DefaultDifficulty
	if c.IsSet("difficulty") {
		difficulty = uint32(c.Uint("difficulty"))
	}

	challenge := &pow.Challenge{
		Challenge:  c.String("challenge"),
		Difficulty: difficulty,
	}

	started := time.Now()

	solution, err := pow.Solve(c.Context, tSettings, challenge)
	if err != nil {
		return err
	}

	elapsed := time.Since(started)

	fmt.Printf("nonce %d\n", solution.Nonce)
	fmt.Printf("digest %s\n", pow.DigestHex(challenge.Challenge, solution.Nonce))
	fmt.Printf("solved %d bits in %s (%.0f hashes/s)\n",
		difficulty, elapsed.Round(time.Millisecond), float64(solution.Nonce+1)/elapsed.Seconds())

	return nil
}

func runFaucet(c *cli.Context, logger ulogger.Logger, tSettings *settings.Settings) error {
	client, err := faucet.NewClient(logger, tSettings)
	if err != nil {
		return err
	}

	token, err := client.EnsureToken(c.Context)
	if err != nil {
		return err
	}

	result, err := client.RequestFunds(c.Context, strings.TrimSpace(c.String("address")), c.Uint64("amount"), token)
	if err != nil {
		return err
	}

	fmt.Printf("funded %s with %d duffs in %s\n", result.Address, result.Amount, result.TxID)

	return nil
}
