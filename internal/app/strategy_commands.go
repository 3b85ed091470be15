package app

import (
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flashexec/flashexec/internal/codec"
	"github.com/flashexec/flashexec/internal/dex"
	"github.com/flashexec/flashexec/internal/engine"
	clierr "github.com/flashexec/flashexec/internal/errors"
	"github.com/flashexec/flashexec/internal/model"
)

// strategyFile is the yaml shape accepted by `strategy create --file`.
type strategyFile struct {
	Name         string               `yaml:"name"`
	Description  string               `yaml:"description"`
	MinProfitBPS uint32               `yaml:"min_profit_bps"`
	MaxGasPrice  string               `yaml:"max_gas_price"`
	Deadline     int64                `yaml:"deadline"`
	Actions      []strategyFileAction `yaml:"actions"`
}

type strategyFileAction struct {
	Type         string   `yaml:"type"`
	Dex          string   `yaml:"dex"`
	Venue        string   `yaml:"venue"`
	TokenIn      string   `yaml:"token_in"`
	TokenOut     string   `yaml:"token_out"`
	Asset        string   `yaml:"asset"`
	Amount       string   `yaml:"amount"`
	MinAmountOut string   `yaml:"min_amount_out"`
	Fee          uint32   `yaml:"fee"`
	Path         []string `yaml:"path"`
	Target       string   `yaml:"target"`
	Data         string   `yaml:"data"`
	Value        string   `yaml:"value"`
	Critical     *bool    `yaml:"critical"`
	ExpectedGas  uint64   `yaml:"expected_gas"`
	Description  string   `yaml:"description"`
}

func (s *runtimeState) newStrategyCommand() *cobra.Command {
	root := &cobra.Command{Use: "strategy", Short: "Strategy registry commands"}

	var filePath, nameOverride string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a strategy from a yaml definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(filePath)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "read strategy file", err)
			}
			var file strategyFile
			if err := yaml.Unmarshal(buf, &file); err != nil {
				return clierr.Wrap(clierr.CodeUsage, "parse strategy yaml", err)
			}
			if nameOverride != "" {
				file.Name = nameOverride
			}
			draft, err := s.buildDraft(file)
			if err != nil {
				return err
			}
			id, err := s.env.registry.Create(s.env.caller, draft)
			if err != nil {
				return err
			}
			created, err := s.env.registry.Get(id)
			if err != nil {
				return err
			}
			if err := s.store.SaveStrategy(strategyToRecord(created)); err != nil {
				return clierr.Wrap(clierr.CodeStore, "persist strategy", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), strategyView(created), nil)
		},
	}
	createCmd.Flags().StringVar(&filePath, "file", "", "Strategy definition yaml")
	createCmd.Flags().StringVar(&nameOverride, "name", "", "Override the strategy name")
	_ = createCmd.MarkFlagRequired("file")
	root.AddCommand(createCmd)

	var listCreator string
	var listActive bool
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := engine.ListFilter{ActiveOnly: listActive, Limit: listLimit}
			if listCreator != "" {
				creator := resolveAccount(listCreator)
				filter.Creator = &creator
			}
			strategies := s.env.registry.List(filter)
			views := make([]model.StrategyView, 0, len(strategies))
			for _, strategy := range strategies {
				views = append(views, strategyView(strategy))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), views, nil)
		},
	}
	listCmd.Flags().StringVar(&listCreator, "creator", "", "Filter by creator")
	listCmd.Flags().BoolVar(&listActive, "active", false, "Only active strategies")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum strategies to return")
	root.AddCommand(listCmd)

	var showID uint64
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show one strategy",
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, err := s.env.registry.Get(showID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), strategyView(strategy), nil)
		},
	}
	showCmd.Flags().Uint64Var(&showID, "id", 0, "Strategy id")
	_ = showCmd.MarkFlagRequired("id")
	root.AddCommand(showCmd)

	root.AddCommand(s.newStrategyToggleCommand("pause", "Pause a strategy", s.envPause))
	root.AddCommand(s.newStrategyToggleCommand("resume", "Resume a paused strategy", s.envResume))

	var updateID uint64
	var updateName, updateDescription string
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update strategy metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.env.registry.UpdateMetadata(s.env.caller, updateID, updateName, updateDescription); err != nil {
				return err
			}
			return s.persistAndShow(cmd, updateID)
		},
	}
	updateCmd.Flags().Uint64Var(&updateID, "id", 0, "Strategy id")
	updateCmd.Flags().StringVar(&updateName, "name", "", "New name")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "New description")
	_ = updateCmd.MarkFlagRequired("id")
	root.AddCommand(updateCmd)

	return root
}

func (s *runtimeState) envPause(id uint64) error {
	return s.env.registry.Pause(s.env.caller, id)
}

func (s *runtimeState) envResume(id uint64) error {
	return s.env.registry.Resume(s.env.caller, id)
}

func (s *runtimeState) newStrategyToggleCommand(use, short string, apply func(uint64) error) *cobra.Command {
	var id uint64
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apply(id); err != nil {
				return err
			}
			return s.persistAndShow(cmd, id)
		},
	}
	cmd.Flags().Uint64Var(&id, "id", 0, "Strategy id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (s *runtimeState) persistAndShow(cmd *cobra.Command, id uint64) error {
	strategy, err := s.env.registry.Get(id)
	if err != nil {
		return err
	}
	if err := s.store.SaveStrategy(strategyToRecord(strategy)); err != nil {
		return clierr.Wrap(clierr.CodeStore, "persist strategy", err)
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), strategyView(strategy), nil)
}

func strategyView(s engine.Strategy) model.StrategyView {
	view := model.StrategyView{
		ID:             s.ID,
		Creator:        s.Creator.Hex(),
		Name:           s.Name,
		Description:    s.Description,
		ActionCount:    len(s.Actions),
		MinProfitBPS:   s.MinProfitBPS,
		Active:         s.Active,
		ExecutionCount: s.ExecutionCount,
		TotalProfit:    s.TotalProfit.String(),
		CreatedAt:      s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	for _, a := range s.Actions {
		view.ActionTypes = append(view.ActionTypes, a.Type.String())
	}
	return view
}

// buildDraft turns the yaml definition into a creation draft, encoding each
// action's payload and resolving venue targets.
func (s *runtimeState) buildDraft(file strategyFile) (engine.StrategyDraft, error) {
	draft := engine.StrategyDraft{
		Name:         file.Name,
		Description:  file.Description,
		MinProfitBPS: file.MinProfitBPS,
		Deadline:     file.Deadline,
	}
	if file.MaxGasPrice != "" {
		ceiling, err := parseAmount(file.MaxGasPrice, "max_gas_price")
		if err != nil {
			return engine.StrategyDraft{}, err
		}
		draft.MaxGasPrice = ceiling
	}
	for i := range file.Actions {
		action := file.Actions[i]
		actionType, err := engine.ParseActionType(strings.ToLower(strings.TrimSpace(action.Type)))
		if err != nil {
			return engine.StrategyDraft{}, err
		}
		target, data, err := s.buildActionPayload(actionType, action)
		if err != nil {
			return engine.StrategyDraft{}, err
		}
		value := big.NewInt(0)
		if action.Value != "" {
			if value, err = parseAmount(action.Value, "action value"); err != nil {
				return engine.StrategyDraft{}, err
			}
		}
		critical := true
		if action.Critical != nil {
			critical = *action.Critical
		}
		draft.ActionTypes = append(draft.ActionTypes, actionType)
		draft.Targets = append(draft.Targets, target)
		draft.Datas = append(draft.Datas, data)
		draft.Values = append(draft.Values, value)
		draft.Critical = append(draft.Critical, critical)
		draft.ExpectedGas = append(draft.ExpectedGas, action.ExpectedGas)
		draft.Descriptions = append(draft.Descriptions, action.Description)
	}
	return draft, nil
}

func parseDexKind(input string) (codec.DexKind, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "v2", "constant-product":
		return codec.DexConstantProduct, nil
	case "v3", "concentrated":
		return codec.DexConcentrated, nil
	default:
		return 0, clierr.Newf(clierr.CodeUsage, "unknown dex %q (want v2 or v3)", input)
	}
}

func (s *runtimeState) buildActionPayload(actionType engine.ActionType, action strategyFileAction) (common.Address, []byte, error) {
	env := s.env
	switch actionType {
	case engine.ActionSwap:
		kind, err := parseDexKind(action.Dex)
		if err != nil {
			return common.Address{}, nil, err
		}
		amount, err := parseAmount(action.Amount, "swap amount")
		if err != nil {
			return common.Address{}, nil, err
		}
		minOut := big.NewInt(0)
		if action.MinAmountOut != "" {
			if minOut, err = parseAmount(action.MinAmountOut, "min_amount_out"); err != nil {
				return common.Address{}, nil, err
			}
		}
		path := make([]common.Address, 0, len(action.Path))
		for _, hop := range action.Path {
			path = append(path, env.resolveToken(hop))
		}
		venueName := dex.VenueConstantProduct
		if kind == codec.DexConcentrated {
			venueName = dex.VenueConcentrated
		}
		target, err := env.venueReg.Resolve(venueName)
		if err != nil {
			return common.Address{}, nil, err
		}
		data, err := codec.EncodeSwapParams(codec.SwapParams{
			Dex:          kind,
			TokenIn:      env.resolveToken(action.TokenIn),
			TokenOut:     env.resolveToken(action.TokenOut),
			AmountIn:     amount,
			MinAmountOut: minOut,
			Path:         path,
			Fee:          action.Fee,
		})
		return target, data, err

	case engine.ActionLend, engine.ActionBorrow:
		amount, err := parseAmount(action.Amount, "amount")
		if err != nil {
			return common.Address{}, nil, err
		}
		venueName := action.Venue
		if venueName == "" {
			venueName = "lending"
		}
		target, err := env.venueReg.Resolve(venueName)
		if err != nil {
			return common.Address{}, nil, err
		}
		data, err := codec.EncodeLendParams(codec.LendParams{
			Asset:  env.resolveToken(action.Asset),
			Amount: amount,
			Venue:  venueName,
		})
		return target, data, err

	case engine.ActionStake, engine.ActionHarvest:
		amount := big.NewInt(0)
		if actionType == engine.ActionStake {
			var err error
			if amount, err = parseAmount(action.Amount, "stake amount"); err != nil {
				return common.Address{}, nil, err
			}
		}
		venueName := action.Venue
		if venueName == "" {
			venueName = "staking"
		}
		target, err := env.venueReg.Resolve(venueName)
		if err != nil {
			return common.Address{}, nil, err
		}
		data, err := codec.EncodeStakeParams(codec.StakeParams{Venue: venueName, Amount: amount})
		return target, data, err

	case engine.ActionWrap, engine.ActionUnwrap:
		amount, err := parseAmount(action.Amount, "amount")
		if err != nil {
			return common.Address{}, nil, err
		}
		venueName := action.Venue
		if venueName == "" {
			venueName = "wrapped"
		}
		target, err := env.venueReg.Resolve(venueName)
		if err != nil {
			return common.Address{}, nil, err
		}
		data, err := codec.EncodeAmount(amount)
		return target, data, err

	case engine.ActionCustom:
		if !strings.HasPrefix(action.Target, "0x") {
			return common.Address{}, nil, clierr.New(clierr.CodeUsage, "custom actions need a 0x target address")
		}
		data := []byte{}
		if action.Data != "" {
			var err error
			if data, err = hexutil.Decode(action.Data); err != nil {
				return common.Address{}, nil, clierr.Wrap(clierr.CodeUsage, "decode custom action data", err)
			}
		}
		return common.HexToAddress(action.Target), data, nil

	default:
		return common.Address{}, nil, clierr.Newf(clierr.CodeUsage, "unsupported action type %q", action.Type)
	}
}
