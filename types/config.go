package types

// Bus configuration, loaded from YAML by services/i2cbus/config.

type BusesConfig struct {
	IdentEnable *bool       `yaml:"identEnable" json:"identEnable,omitempty"`
	Buses       []BusConfig `yaml:"buses" json:"buses"`
}

// BusConfig describes one bus instance. Durations are milliseconds unless
// noted; zero means "use the default".
type BusConfig struct {
	Type        string `yaml:"type" json:"type"` // bus type tag, e.g. "i2c"
	Name        string `yaml:"name" json:"name"`
	Port        int    `yaml:"port" json:"port"`
	SDAPin      int    `yaml:"sdaPin" json:"sdaPin"`
	SCLPin      int    `yaml:"sclPin" json:"sclPin"`
	AddrBits    int    `yaml:"addrBits" json:"addrBits"` // 7; 0 means 7
	FreqHz      uint32 `yaml:"freqHz" json:"freqHz"`
	FilterLevel int    `yaml:"filterLevel" json:"filterLevel"`
	IdentEnable *bool  `yaml:"identEnable" json:"identEnable,omitempty"`

	LockupDetect *Addr  `yaml:"lockupDetect" json:"lockupDetect,omitempty"`
	ScanBoost    []Addr `yaml:"scanBoost" json:"scanBoost,omitempty"`

	Mux    MuxConfig    `yaml:"mux" json:"mux"`
	Power  PowerConfig  `yaml:"pwr" json:"pwr"`
	Worker WorkerHints  `yaml:"worker" json:"worker"`
	Timing TimingConfig `yaml:"timing" json:"timing"`
	Limits LimitConfig  `yaml:"limits" json:"limits"`
}

// MuxConfig bounds the extender address range on the root bus.
type MuxConfig struct {
	MinAddr *Addr `yaml:"minAddr" json:"minAddr,omitempty"`
	MaxAddr *Addr `yaml:"maxAddr" json:"maxAddr,omitempty"`
}

// PowerConfig lists slot power controllers.
type PowerConfig struct {
	Ctrl []PowerCtrlConfig `yaml:"ctrl" json:"ctrl,omitempty"`
}

type PowerCtrlConfig struct {
	Dev      string `yaml:"dev" json:"dev"`
	Addr     Addr   `yaml:"addr" json:"addr"`
	MinSlot  int    `yaml:"minSlot" json:"minSlot"`
	NumSlots int    `yaml:"numSlots" json:"numSlots"`
}

// WorkerHints are scheduling hints for the bus goroutine. Zero values mean
// no preference.
type WorkerHints struct {
	Core       int `yaml:"core" json:"core"`
	Priority   int `yaml:"priority" json:"priority"`
	StackBytes int `yaml:"stackBytes" json:"stackBytes"`
}

type TimingConfig struct {
	TxTimeoutMs         int `yaml:"txTimeoutMs" json:"txTimeoutMs"`
	MinTxSpacingUs      int `yaml:"minTxSpacingUs" json:"minTxSpacingUs"`
	SlowScanPeriodMs    int `yaml:"slowScanPeriodMs" json:"slowScanPeriodMs"`
	FastScanMaxMs       int `yaml:"fastScanMaxMs" json:"fastScanMaxMs"`
	YieldBudgetMs       int `yaml:"yieldBudgetMs" json:"yieldBudgetMs"`
	FastScanYieldBudget int `yaml:"fastScanYieldBudgetMs" json:"fastScanYieldBudgetMs"`
	YieldForMs          int `yaml:"yieldForMs" json:"yieldForMs"`
	BarDurationMs       int `yaml:"barDurationMs" json:"barDurationMs"`
	PowerCycleHiatusMs  int `yaml:"powerCycleHiatusMs" json:"powerCycleHiatusMs"`
}

type LimitConfig struct {
	QueueLen           int `yaml:"queueLen" json:"queueLen"`
	MaxInternalPerIter int `yaml:"maxInternalPerIter" json:"maxInternalPerIter"`
	OKMax              int `yaml:"okMax" json:"okMax"`
	FailMax            int `yaml:"failMax" json:"failMax"`
	BarThreshold       int `yaml:"barThreshold" json:"barThreshold"`
	StuckAfter         int `yaml:"stuckAfter" json:"stuckAfter"`
}
