package engine

import "fmt"

// GridType selects the post-fill order-creation policy.
type GridType int

const (
	GridPullback GridType = iota
	GridBuyTheDip
	GridProgressive
)

func (g GridType) String() string {
	switch g {
	case GridPullback:
		return "pullback"
	case GridBuyTheDip:
		return "buy_the_dip"
	case GridProgressive:
		return "progressive"
	}
	return fmt.Sprintf("GridType(%d)", int(g))
}

func ParseGridType(s string) (GridType, error) {
	switch s {
	case "pullback":
		return GridPullback, nil
	case "buy_the_dip", "buy-the-dip", "dip":
		return GridBuyTheDip, nil
	case "progressive", "ratchet":
		return GridProgressive, nil
	}
	return 0, &ConfigError{Field: "grid_type", Reason: "unknown value " + s}
}

// SpacingModel selects how rung prices are derived from the anchor.
type SpacingModel int

const (
	SpacingFixed SpacingModel = iota
	SpacingPercent
)

func (m SpacingModel) String() string {
	if m == SpacingPercent {
		return "percent_fixed"
	}
	return "fixed"
}

func ParseSpacingModel(s string) (SpacingModel, error) {
	switch s {
	case "fixed":
		return SpacingFixed, nil
	case "percent_fixed", "percent":
		return SpacingPercent, nil
	}
	return 0, &ConfigError{Field: "spacing_model", Reason: "unknown value " + s}
}

// RetentionMode controls how much of a filled buy is liquidated by its
// pairing sell.
type RetentionMode int

const (
	RetainNone RetentionMode = iota
	RetainProfit
	RetainProfitPlus5
	RetainProfitPlus10
)

func (m RetentionMode) String() string {
	switch m {
	case RetainNone:
		return "none"
	case RetainProfit:
		return "profit"
	case RetainProfitPlus5:
		return "profit_plus_5"
	case RetainProfitPlus10:
		return "profit_plus_10"
	}
	return fmt.Sprintf("RetentionMode(%d)", int(m))
}

func ParseRetentionMode(s string) (RetentionMode, error) {
	switch s {
	case "none":
		return RetainNone, nil
	case "profit":
		return RetainProfit, nil
	case "profit_plus_5":
		return RetainProfitPlus5, nil
	case "profit_plus_10":
		return RetainProfitPlus10, nil
	}
	return 0, &ConfigError{Field: "retention_mode", Reason: "unknown value " + s}
}

// FundingMode controls whether buys beyond available cash are rejected or
// funded by tracked capital contributions.
type FundingMode int

const (
	FundingStrict FundingMode = iota
	FundingAutofund
	FundingMargin
)

func (m FundingMode) String() string {
	switch m {
	case FundingStrict:
		return "strict"
	case FundingAutofund:
		return "autofund"
	case FundingMargin:
		return "margin"
	}
	return fmt.Sprintf("FundingMode(%d)", int(m))
}

func ParseFundingMode(s string) (FundingMode, error) {
	switch s {
	case "strict":
		return FundingStrict, nil
	case "autofund":
		return FundingAutofund, nil
	case "margin":
		return FundingMargin, nil
	}
	return 0, &ConfigError{Field: "funding_mode", Reason: "unknown value " + s}
}

// ParseEntryFilter maps a filter name to its daily SMA window. 0 disables the
// filter.
func ParseEntryFilter(s string) (int, error) {
	switch s {
	case "none", "":
		return 0, nil
	case "sma10":
		return 10, nil
	case "sma20":
		return 20, nil
	case "sma50":
		return 50, nil
	case "sma100":
		return 100, nil
	}
	return 0, &ConfigError{Field: "entry_filter", Reason: "unknown value " + s}
}

// Config is the full parameter set of one run. All fields are validated
// before the first bar is processed.
type Config struct {
	GridType GridType
	Spacing  SpacingModel

	// GridSize is dollars per rung under fixed spacing, percent per rung
	// under percent_fixed spacing.
	GridSize float64

	// Anchor is the ladder origin price. 0 anchors at the first bar's open.
	Anchor float64

	TradeValue       float64
	InitialCash      float64
	FractionalShares bool
	Retention        RetentionMode

	// FilterWindow is the daily SMA window of the entry filter; 0 disables it.
	FilterWindow int

	TickSize float64
	Funding  FundingMode

	// ChunkSize is the number of bars processed between cooperative
	// cancellation checks. 0 runs the whole series in one chunk.
	ChunkSize int
}

func (c Config) Validate() error {
	if c.GridSize <= 0 {
		return &ConfigError{Field: "grid_size", Reason: "must be > 0"}
	}
	if c.TickSize <= 0 {
		return &ConfigError{Field: "tick_size", Reason: "must be > 0"}
	}
	if c.TradeValue <= 0 {
		return &ConfigError{Field: "trade_value", Reason: "must be > 0"}
	}
	if c.InitialCash < 0 {
		return &ConfigError{Field: "initial_cash", Reason: "must be >= 0"}
	}
	if c.Anchor < 0 {
		return &ConfigError{Field: "anchor", Reason: "must be >= 0"}
	}
	if c.Spacing == SpacingFixed && c.GridSize < c.TickSize {
		return &ConfigError{Field: "grid_size", Reason: "smaller than tick_size"}
	}
	switch c.FilterWindow {
	case 0, 10, 20, 50, 100:
	default:
		return &ConfigError{Field: "entry_filter", Reason: fmt.Sprintf("unsupported SMA window %d", c.FilterWindow)}
	}
	if c.ChunkSize < 0 {
		return &ConfigError{Field: "chunk_size", Reason: "must be >= 0"}
	}
	return nil
}
