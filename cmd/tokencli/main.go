package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"qtc-marketplace/internal/client"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/logger"
	"qtc-marketplace/internal/service"

	"github.com/shopspring/decimal"
)

const usage = `usage: tokencli [flags] <command> [args]

commands:
  info                         contract addresses, supply and merchant balance
  balance <wallet>             QTC and SOL balance of a wallet
  sol-balance <wallet>         SOL balance of a wallet
  account <wallet>             associated token account of a wallet
  supply                       total QTC supply
  airdrop <wallet> [sol]       request devnet SOL (default 1)
  transfer <recipient> <qtc>   send QTC from the signer key
  confirm <signature>          wait for a transaction to confirm
`

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load")
	timeout := flag.Duration("timeout", 90*time.Second, "overall command timeout")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage); flag.PrintDefaults() }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		exit(err)
	}
	log := logger.New(logger.Options{
		ServiceName: "tokencli",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      "console",
		Output:      os.Stderr,
	})

	ledger, err := client.NewSolanaClient(&cfg.Solana)
	if err != nil {
		exit(err)
	}
	tokens := service.NewTokenService(ledger, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, tokens, flag.Args())
	if err != nil {
		cancel()
		exit(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		exit(err)
	}
}

func run(ctx context.Context, tokens service.TokenService, args []string) (any, error) {
	cmd, args := args[0], args[1:]
	arg := func(i int) (string, error) {
		if len(args) <= i {
			return "", fmt.Errorf("%s: missing argument %d\n\n%s", cmd, i+1, usage)
		}
		return args[i], nil
	}

	switch cmd {
	case "info":
		return tokens.Info(ctx)
	case "supply":
		info, err := tokens.Info(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"total_supply": info.TotalSupply, "token_mint": info.Contract.TokenMint}, nil
	case "balance", "sol-balance":
		wallet, err := arg(0)
		if err != nil {
			return nil, err
		}
		balances, err := tokens.Balances(ctx, wallet)
		if err != nil || cmd == "balance" {
			return balances, err
		}
		return map[string]any{"wallet": balances.Wallet, "sol_balance": balances.SOLBalance}, nil
	case "account":
		wallet, err := arg(0)
		if err != nil {
			return nil, err
		}
		return tokens.TokenAccount(ctx, wallet)
	case "airdrop":
		wallet, err := arg(0)
		if err != nil {
			return nil, err
		}
		sol := decimal.NewFromInt(1)
		if len(args) > 1 {
			if sol, err = decimal.NewFromString(args[1]); err != nil {
				return nil, fmt.Errorf("airdrop: invalid amount %q", args[1])
			}
		}
		return tokens.Airdrop(ctx, wallet, sol)
	case "transfer":
		recipient, err := arg(0)
		if err != nil {
			return nil, err
		}
		raw, err := arg(1)
		if err != nil {
			return nil, err
		}
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("transfer: invalid amount %q", raw)
		}
		return tokens.Transfer(ctx, recipient, amount)
	case "confirm":
		sig, err := arg(0)
		if err != nil {
			return nil, err
		}
		return tokens.Confirm(ctx, sig)
	}
	return nil, fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}

func exit(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
