package app

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "github.com/flashexec/flashexec/internal/errors"
	"github.com/flashexec/flashexec/internal/model"
)

func (s *runtimeState) paramsView() model.SafetyParamsView {
	params := s.env.safety.Params()
	return model.SafetyParamsView{
		MaxSlippageBPS: params.MaxSlippageBPS,
		MinProfitBPS:   params.MinProfitBPS,
		MaxGasPrice:    params.MaxGasPrice.String(),
		EmergencyStop:  params.EmergencyStop,
	}
}

func (s *runtimeState) newParamsCommand() *cobra.Command {
	root := &cobra.Command{Use: "params", Short: "Safety parameter commands"}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current safety parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.paramsView(), nil)
		},
	}
	root.AddCommand(showCmd)

	var maxSlippage, minProfit uint32
	var maxGasPrice string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Overwrite the safety parameters (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ceiling, err := parseAmount(maxGasPrice, "--max-gas-price")
			if err != nil {
				return err
			}
			if err := s.env.safety.UpdateParams(s.env.caller, maxSlippage, minProfit, ceiling); err != nil {
				return err
			}
			if err := s.saveSafetyState(); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.paramsView(), nil)
		},
	}
	setCmd.Flags().Uint32Var(&maxSlippage, "max-slippage-bps", 0, "Maximum slippage in basis points")
	setCmd.Flags().Uint32Var(&minProfit, "min-profit-bps", 0, "Minimum profit floor in basis points")
	setCmd.Flags().StringVar(&maxGasPrice, "max-gas-price", "0", "Gas price ceiling (0 = none)")
	root.AddCommand(setCmd)

	return root
}

func (s *runtimeState) newEmergencyCommand() *cobra.Command {
	root := &cobra.Command{Use: "emergency", Short: "Emergency stop and recovery"}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Toggle the emergency stop flag (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopped, err := s.env.safety.ToggleEmergencyStop(s.env.caller)
			if err != nil {
				return err
			}
			if err := s.saveSafetyState(); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]bool{"emergency_stop": stopped}, nil)
		},
	}
	root.AddCommand(stopCmd)

	var asset, to string
	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Sweep the engine's balance of an asset (admin only, stop must be active)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return clierr.New(clierr.CodeUsage, "--to is required")
			}
			token := s.env.resolveToken(asset)
			amount, err := s.env.engine.EmergencyWithdraw(s.env.caller, token, resolveAccount(to))
			if err != nil {
				return err
			}
			data := map[string]string{
				"asset":  token.Hex(),
				"to":     resolveAccount(to).Hex(),
				"amount": amount.String(),
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
		},
	}
	withdrawCmd.Flags().StringVar(&asset, "asset", "", "Asset to sweep (native when omitted)")
	withdrawCmd.Flags().StringVar(&to, "to", "", "Destination address or account label")
	root.AddCommand(withdrawCmd)

	return root
}

func (s *runtimeState) newVenueCommand() *cobra.Command {
	root := &cobra.Command{Use: "venue", Short: "Venue registry commands"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered venues",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := s.env.venueReg.Names()
			views := make([]model.VenueView, 0, len(names))
			for _, name := range names {
				addr, err := s.env.venueReg.Resolve(name)
				if err != nil {
					return err
				}
				views = append(views, model.VenueView{Name: name, Address: addr.Hex()})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), views, nil)
		},
	}
	root.AddCommand(listCmd)

	var name, address string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Bind a venue name to an address (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := common.HexToAddress(address)
			if err := s.env.venueReg.Set(s.env.caller, name, addr); err != nil {
				return err
			}
			if err := s.saveVenueOverride(name, addr); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.VenueView{Name: name, Address: addr.Hex()}, nil)
		},
	}
	setCmd.Flags().StringVar(&name, "name", "", "Venue name")
	setCmd.Flags().StringVar(&address, "address", "", "Venue contract address")
	_ = setCmd.MarkFlagRequired("name")
	_ = setCmd.MarkFlagRequired("address")
	root.AddCommand(setCmd)

	return root
}

func (s *runtimeState) newExecutorCommand() *cobra.Command {
	root := &cobra.Command{Use: "executor", Short: "Executor allow-list commands"}

	toggle := func(use, short string, allowed bool) *cobra.Command {
		var address string
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				executor := resolveAccount(address)
				if err := s.env.safety.SetAuthorizedExecutor(s.env.caller, executor, allowed); err != nil {
					return err
				}
				if err := s.saveSafetyState(); err != nil {
					return err
				}
				data := map[string]any{"executor": executor.Hex(), "authorized": allowed}
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil)
			},
		}
		cmd.Flags().StringVar(&address, "address", "", "Executor address or account label")
		_ = cmd.MarkFlagRequired("address")
		return cmd
	}

	root.AddCommand(toggle("allow", "Add an executor to the allow-list (admin only)", true))
	root.AddCommand(toggle("revoke", "Remove an executor from the allow-list (admin only)", false))
	return root
}

func (s *runtimeState) newInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show engine identity and global status",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := s.env.engine.Info()
			view := model.ContractInfoView{
				Engine:         info.Engine.Hex(),
				Admin:          info.Admin.Hex(),
				Lender:         info.Lender.Hex(),
				EmergencyStop:  info.EmergencyStop,
				NextStrategyID: info.NextStrategyID,
				PremiumBPS:     info.PremiumBPS,
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil)
		},
	}
	return cmd
}
