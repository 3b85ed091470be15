package app

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/flashexec/flashexec/internal/codec"
	"github.com/flashexec/flashexec/internal/engine"
	clierr "github.com/flashexec/flashexec/internal/errors"
	"github.com/flashexec/flashexec/internal/id"
	"github.com/flashexec/flashexec/internal/model"
	"github.com/flashexec/flashexec/internal/store"
)

func (s *runtimeState) newExecuteCommand() *cobra.Command {
	var strategyID uint64
	var assetArgs []string
	var amountBase, amountDecimal string
	var decimals int
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a strategy inside one atomic flash-loan operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(assetArgs) == 0 {
				return clierr.New(clierr.CodeUsage, "--asset is required")
			}
			amount, err := id.ParseAmount(amountBase, amountDecimal, decimals)
			if err != nil {
				return err
			}
			assets := make([]common.Address, 0, len(assetArgs))
			amounts := make([]*big.Int, 0, len(assetArgs))
			for _, asset := range assetArgs {
				assets = append(assets, s.env.resolveToken(asset))
				amounts = append(amounts, amount)
			}

			report, execErr := s.env.engine.Execute(context.Background(), s.env.caller, strategyID, assets, amounts)

			rec := store.ExecutionRecord{
				StrategyID: strategyID,
				Executor:   s.env.caller.Hex(),
				Success:    execErr == nil,
				CreatedAt:  time.Now().UTC().Format(time.RFC3339),
			}
			if execErr != nil {
				rec.Asset = assets[0].Hex()
				rec.Principal = amount.String()
				rec.Profit = "0"
				if _, err := s.store.SaveExecution(rec); err != nil {
					s.log.Warn().Err(err).Msg("persist failed execution record")
				}
				return execErr
			}

			rec.Asset = report.Asset.Hex()
			rec.Principal = report.Principal.String()
			rec.Premium = report.Premium.String()
			rec.Profit = report.Profit.String()
			executionID, err := s.store.SaveExecution(rec)
			if err != nil {
				return clierr.Wrap(clierr.CodeStore, "persist execution", err)
			}
			if err := s.store.AddProfit(report.Executor.Hex(), report.Asset.Hex(), report.Profit); err != nil {
				return clierr.Wrap(clierr.CodeStore, "persist profit", err)
			}
			updated, err := s.env.registry.Get(strategyID)
			if err == nil {
				if err := s.store.SaveStrategy(strategyToRecord(updated)); err != nil {
					return clierr.Wrap(clierr.CodeStore, "persist strategy counters", err)
				}
			}

			view := executionView(report)
			view.ExecutionID = executionID
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil)
		},
	}
	cmd.Flags().Uint64Var(&strategyID, "strategy", 0, "Strategy id")
	cmd.Flags().StringSliceVar(&assetArgs, "asset", nil, "Borrowed asset (repeatable; first is the profit asset)")
	cmd.Flags().StringVar(&amountBase, "amount", "", "Borrow amount in base units")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Borrow amount in decimal units")
	cmd.Flags().IntVar(&decimals, "decimals", 18, "Token decimals for --amount-decimal")
	_ = cmd.MarkFlagRequired("strategy")
	return cmd
}

func executionView(report *engine.ExecutionReport) model.ExecutionView {
	view := model.ExecutionView{
		StrategyID: report.StrategyID,
		Executor:   report.Executor.Hex(),
		Asset:      report.Asset.Hex(),
		Principal:  report.Principal.String(),
		Premium:    report.Premium.String(),
		Profit:     report.Profit.String(),
	}
	for _, result := range report.Results {
		rv := model.ActionResultView{
			Index:   result.Index,
			Type:    result.Type.String(),
			Success: result.Success,
		}
		if result.Err != nil {
			rv.Error = result.Err.Error()
		}
		view.Actions = append(view.Actions, rv)
	}
	return view
}

func (s *runtimeState) newExecutionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "executions", Short: "Execution history"}
	var strategyID uint64
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := s.store.ListExecutions(strategyID, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeStore, "list executions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), records, nil)
		},
	}
	listCmd.Flags().Uint64Var(&strategyID, "strategy", 0, "Filter by strategy id (0 = all)")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum records to return")
	root.AddCommand(listCmd)
	return root
}

func (s *runtimeState) newQuoteCommand() *cobra.Command {
	var dexArg, tokenIn, tokenOut, amountBase string
	var fee uint32
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseDexKind(dexArg)
			if err != nil {
				return err
			}
			amount, err := parseAmount(amountBase, "--amount")
			if err != nil {
				return err
			}
			in := s.env.resolveToken(tokenIn)
			out := s.env.resolveToken(tokenOut)

			view := model.QuoteView{
				Dex:      dexArg,
				TokenIn:  in.Hex(),
				TokenOut: out.Hex(),
				AmountIn: amount.String(),
			}
			if kind == codec.DexConstantProduct {
				quoted, err := s.env.adapter.QuoteConstantProduct("", amount, []common.Address{in, out})
				if err != nil {
					return err
				}
				view.Dex = "v2"
				view.AmountOut = quoted.String()
			} else {
				selected := fee
				var quoted *big.Int
				if selected == 0 {
					selected, quoted, err = s.env.adapter.SelectTier("", in, out, amount)
				} else {
					quoted, err = s.env.adapter.QuoteConcentrated("", in, out, selected, amount)
				}
				if err != nil {
					return err
				}
				view.Dex = "v3"
				view.Fee = selected
				view.AmountOut = quoted.String()
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil)
		},
	}
	cmd.Flags().StringVar(&dexArg, "dex", "v2", "Venue family (v2|v3)")
	cmd.Flags().StringVar(&tokenIn, "token-in", "", "Input token")
	cmd.Flags().StringVar(&tokenOut, "token-out", "", "Output token")
	cmd.Flags().StringVar(&amountBase, "amount", "", "Amount in base units")
	cmd.Flags().Uint32Var(&fee, "fee", 0, "Fee tier for v3 (0 = probe all tiers)")
	_ = cmd.MarkFlagRequired("token-in")
	_ = cmd.MarkFlagRequired("token-out")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (s *runtimeState) newGasCommand() *cobra.Command {
	root := &cobra.Command{Use: "gas", Short: "Gas estimation and profitability helpers"}

	var estimateID uint64
	estimateCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate execution gas for a strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := s.env.registry.Get(estimateID)
			if err != nil {
				return err
			}
			view := model.GasEstimateView{
				StrategyID:  estimateID,
				GasEstimate: engine.EstimateGas(strategy),
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil)
		},
	}
	estimateCmd.Flags().Uint64Var(&estimateID, "strategy", 0, "Strategy id")
	_ = estimateCmd.MarkFlagRequired("strategy")
	root.AddCommand(estimateCmd)

	var checkID uint64
	var expectedProfit, principal string
	checkCmd := &cobra.Command{
		Use:   "profitability",
		Short: "Check whether an expected profit clears gas cost and the profit floor",
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := s.env.registry.Get(checkID)
			if err != nil {
				return err
			}
			profit, err := parseAmount(expectedProfit, "--expected-profit")
			if err != nil {
				return err
			}
			borrowed, err := parseAmount(principal, "--principal")
			if err != nil {
				return err
			}
			check := engine.CheckProfitability(strategy, s.env.safety.Params(), s.env.st.GasPrice(), borrowed, profit)
			view := model.ProfitabilityView{
				StrategyID:  checkID,
				GasEstimate: check.GasEstimate,
				GasCost:     check.GasCost.String(),
				NetProfit:   check.NetProfit.String(),
				MinProfit:   check.MinProfit.String(),
				Profitable:  check.Profitable,
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil)
		},
	}
	checkCmd.Flags().Uint64Var(&checkID, "strategy", 0, "Strategy id")
	checkCmd.Flags().StringVar(&expectedProfit, "expected-profit", "", "Expected profit in base units")
	checkCmd.Flags().StringVar(&principal, "principal", "", "Borrow principal in base units")
	_ = checkCmd.MarkFlagRequired("strategy")
	_ = checkCmd.MarkFlagRequired("expected-profit")
	_ = checkCmd.MarkFlagRequired("principal")
	root.AddCommand(checkCmd)

	return root
}

func (s *runtimeState) newProfitCommand() *cobra.Command {
	var user, asset string
	cmd := &cobra.Command{
		Use:   "profit",
		Short: "Read cumulative realized profit for a user and asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			account := s.env.caller
			if user != "" {
				account = resolveAccount(user)
			}
			token := s.env.resolveToken(asset)
			total, err := s.store.GetProfit(account.Hex(), token.Hex())
			if err != nil {
				return clierr.Wrap(clierr.CodeStore, "read profit", err)
			}
			view := model.ProfitView{
				User:   account.Hex(),
				Asset:  token.Hex(),
				Profit: total.String(),
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User address or account label (default: caller)")
	cmd.Flags().StringVar(&asset, "asset", "", "Asset token")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}
