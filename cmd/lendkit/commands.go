package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/archon-research/lendkit/internal/application"
	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/blockchain"
	"github.com/archon-research/lendkit/internal/services/connection"
)

type cli struct {
	app      *application.LendingApp
	conn     *connection.Manager
	registry *entity.ChainRegistry
	logger   *slog.Logger
	out      io.Writer
}

func (c *cli) dispatch(ctx context.Context, args []string) error {
	name, rest := args[0], args[1:]
	switch name {
	case "connect":
		return c.connect(ctx, rest)
	case "disconnect":
		return c.conn.Disconnect(ctx)
	}

	// Every other command works on the session a previous run left behind.
	c.conn.Restore(ctx)

	switch name {
	case "status":
		return c.status()
	case "switch":
		return c.switchChain(ctx, rest)
	case "assets":
		return c.assets(ctx)
	case "strategies":
		return c.strategies(ctx, rest)
	case "position":
		return c.position(ctx, rest)
	case "balance":
		return c.balance(ctx, rest)
	case "max-borrow":
		return c.maxBorrow(ctx, rest)
	case "deposit":
		return c.deposit(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

// parseArgs parses flags interleaved with positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func (c *cli) connect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	chainID := fs.Int64("chain", 0, "chain id (primary chain when 0)")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	if *chainID == 0 && c.conn.Restore(ctx) {
		return c.status()
	}
	if _, err := c.conn.Connect(ctx, *chainID); err != nil {
		return err
	}
	return c.status()
}

func (c *cli) status() error {
	s := c.conn.Session()
	chain, _ := c.registry.Get(s.ChainID)
	if !s.Connected() {
		fmt.Fprintf(c.out, "%s (%s)\n", s.State, chain.Name)
		return nil
	}
	fmt.Fprintf(c.out, "connected %s on %s (%d)\n", entity.AddressEllipsis(s.Address.Hex(), 4), chain.Name, s.ChainID)
	if action, ok := c.app.Pending(); ok {
		fmt.Fprintf(c.out, "pending %s %s %s\n", action.Kind, action.Asset, action.TxHash.Hex())
	}
	return nil
}

func (c *cli) switchChain(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: switch <chain id>")
	}
	chainID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chain id %q: %w", args[0], err)
	}
	ok, err := c.conn.SwitchChain(ctx, chainID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "switch declined")
		return nil
	}
	return c.status()
}

func (c *cli) assets(ctx context.Context) error {
	assets, err := c.app.Assets(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ASSET\tDECIMALS\tBORROWS")
	for _, a := range assets {
		loan := a.LoanSymbol()
		if a.Native {
			loan = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", a.Symbol, a.Decimals, loan)
	}
	return w.Flush()
}

func (c *cli) strategies(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: strategies <asset>")
	}
	strategies, err := c.app.Strategies(ctx, args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTRATEGY\tTOKEN")
	for i, s := range strategies {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, s.Label(), s.Token.Hex())
	}
	return w.Flush()
}

func (c *cli) position(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("position", flag.ContinueOnError)
	index := fs.Int("strategy", 0, "strategy index")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return errors.New("usage: position <asset> [-strategy i]")
	}
	strategy, err := c.app.Strategy(ctx, rest[0], *index)
	if err != nil {
		return err
	}
	pos, err := c.app.Position(ctx, strategy)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\nshares %s\nlast accrued weight %s\n",
		strategy.Label(),
		blockchain.FormatUnits(pos.Shares, entity.PositionDecimals),
		blockchain.FormatUnits(pos.LastAccruedWeight, entity.PositionDecimals))
	return nil
}

func (c *cli) balance(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: balance <asset>")
	}
	info, err := c.app.TokenInfo(ctx, args[0])
	if err != nil {
		return err
	}
	allowance := blockchain.FormatUnits(info.Allowance, info.Decimals)
	if info.Native {
		allowance = "unlimited"
	}
	fmt.Fprintf(c.out, "balance %s %s\nallowance %s\n", blockchain.FormatUnits(info.Balance, info.Decimals), info.Symbol, allowance)
	return nil
}

func (c *cli) maxBorrow(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: max-borrow <asset> [amount]")
	}
	amount := ""
	if len(args) == 2 {
		amount = args[1]
	}
	asset, ok := entity.LookupAsset(args[0])
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrUnknownAsset, args[0])
	}
	limit, err := c.app.MaxBorrow(ctx, asset.Symbol, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s\n", application.FormatMaxBorrow(limit, asset), asset.LoanSymbol())
	return nil
}

func (c *cli) deposit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
	index := fs.Int("strategy", 0, "strategy index")
	borrow := fs.String("borrow", "", `amount to borrow in the same transaction, or "max"`)
	wait := fs.Bool("wait", true, "wait for confirmation")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 2 {
		return errors.New("usage: deposit <asset> <amount> [-strategy i] [-borrow amount|max] [-wait]")
	}
	asset, ok := entity.LookupAsset(rest[0])
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrUnknownAsset, rest[0])
	}

	form := application.DepositForm{
		Asset:         asset.Symbol,
		Amount:        rest[1],
		StrategyIndex: *index,
		Borrow:        *borrow != "",
		LoanAmount:    *borrow,
	}

	// Connecting and approving each take a round before the deposit itself.
	for round := 0; round < 3; round++ {
		if form.Borrow && *borrow == "max" && c.conn.Session().Connected() {
			limit, err := c.app.MaxBorrow(ctx, form.Asset, form.Amount)
			if err != nil {
				return err
			}
			form.LoanAmount = application.FormatMaxBorrow(limit, asset)
		}

		tx, check, err := c.app.Submit(ctx, form)
		if err != nil {
			var invalid *application.ValidationError
			if errors.As(err, &invalid) {
				fmt.Fprintln(c.out, check.Label())
			}
			return err
		}
		if tx == nil {
			continue
		}

		fmt.Fprintf(c.out, "%s sent %s\n", check.Label(), tx.Hash().Hex())
		if !*wait {
			return nil
		}
		receipt, err := tx.Wait(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "confirmed in block %s\n", receipt.BlockNumber)
		if check.Action != application.ActionApprove {
			return nil
		}
	}
	return errors.New("deposit did not complete")
}
