// Package domain holds the shared record types persisted and exchanged
// between guidance components. Keeping them in one package avoids import
// cycles between store, cost, budget, and guidance.
package domain

import "time"

// Domain tags a personality's subject area.
type Domain string

const (
	DomainSpiritual    Domain = "spiritual"
	DomainScientific   Domain = "scientific"
	DomainHistorical   Domain = "historical"
	DomainPhilosophical Domain = "philosophical"
)

// Quality is the coarse label attached to a generated response.
type Quality string

const (
	QualityHigh     Quality = "high"
	QualityMedium   Quality = "medium"
	QualityLow      Quality = "low"
	QualityFallback Quality = "fallback"
)

// Role is a derived authorization level.
type Role string

const (
	RoleUser        Role = "user"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
)

// Permission is a named capability granted to a Role.
type Permission string

const (
	PermissionAskGuidance   Permission = "guidance:ask"
	PermissionViewOwnUsage  Permission = "usage:view_own"
	PermissionViewAllUsage  Permission = "usage:view_all"
	PermissionManageBudget  Permission = "budget:manage"
	PermissionManageRoles   Permission = "roles:manage"
	PermissionClearBlocks   Permission = "blocks:clear"
)

// Personality is a persona configuration loaded at startup.
type Personality struct {
	ID                string
	DisplayName       string
	Domain            Domain
	Greeting          string
	MaxChars          int
	Timeout           time.Duration
	MaxRetries        int
	PromptTemplateID  string
	CorpusPartition   string
	CitationsRequired bool
}

// Chunk is a retrievable passage of source text with a pre-computed embedding.
type Chunk struct {
	ID          string
	Text        string
	SourceDoc   string
	Section     string
	KeyTerms    []string
	Citations   []string
	Quality     float64
	Embedding   []float32
	Partition   string
	CreatedAt   time.Time
}

// AuthenticatedUser is the identity derived from a validated bearer token.
type AuthenticatedUser struct {
	Subject     string
	Email       string
	DisplayName string
	Role        Role
	Permissions []Permission
	LastLogin   time.Time
	Active      bool
}

// UsageRecord is an append-only record of one billable LLM call.
type UsageRecord struct {
	ID           string
	UserID       string
	Email        string
	SessionID    string
	Timestamp    time.Time
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Cost         float64 // USD, 6-decimal precision
	RequestType  string
	Quality      Quality
	Personality  string
}

// PersonalityHistogram counts uses per personality id.
type PersonalityHistogram map[string]int

// QualityHistogram counts uses per quality class.
type QualityHistogram map[Quality]int

// UserStats is the per-user aggregate, recomputed (never incrementally
// mutated) from the persisted UsageRecord set. See SPEC_FULL.md §9 for why
// recompute is the sole source of truth.
type UserStats struct {
	UserID             string
	TotalRequests      int
	TotalTokens        int
	TotalCost          float64
	CurrentMonthTokens int
	CurrentMonthCost   float64
	LastRequest        time.Time
	AvgTokensPerReq    float64
	MostUsedModel      string
	PersonalityUse     PersonalityHistogram
	QualityUse         QualityHistogram
	RiskScore          float64
	Blocked            bool
	BlockedReason      string
}

// BudgetPeriod is the window a BudgetAlert measures usage against.
type BudgetPeriod string

const (
	PeriodDay   BudgetPeriod = "day"
	PeriodMonth BudgetPeriod = "month"
)

// BudgetLevel is the threshold a BudgetAlert crossed.
type BudgetLevel string

const (
	LevelInfo      BudgetLevel = "info"      // 50%
	LevelWarning   BudgetLevel = "warning"   // 75%
	LevelCritical  BudgetLevel = "critical"  // 90%
	LevelEmergency BudgetLevel = "emergency" // 100%
)

// BudgetAction is the consequence BudgetEnforcer.checkAlerts applied.
type BudgetAction string

const (
	ActionNone     BudgetAction = "none"
	ActionNotify   BudgetAction = "notify"
	ActionFallback BudgetAction = "fallback"
	ActionBlock    BudgetAction = "block"
)

// BudgetLimit holds one user's spending caps.
type BudgetLimit struct {
	UserID            string
	MonthlyCap        float64
	DailyCap          float64
	PerRequestCap     float64
	Enabled           bool
	EmergencyOverride bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BudgetAlert is an append-only record of a threshold crossing.
type BudgetAlert struct {
	UserID     string
	Level      BudgetLevel
	Period     BudgetPeriod
	Current    float64
	Limit      float64
	Percentage float64
	Action     BudgetAction
	Timestamp  time.Time
}

// Conversation is an append-only audit record of one served request.
type Conversation struct {
	ID          string
	UserID      string
	SessionID   string
	Timestamp   time.Time
	Question    string
	Response    string
	Citations   []string
	Personality string
}

// TxnState is the lifecycle state of a Transaction.
type TxnState string

const (
	TxnPending    TxnState = "pending"
	TxnCommitted  TxnState = "committed"
	TxnRolledBack TxnState = "rolled_back"
	TxnFailed     TxnState = "failed"
)

// OpIntent is the kind of mutation a TxnOperation performs.
type OpIntent string

const (
	OpCreate OpIntent = "create"
	OpUpdate OpIntent = "update"
	OpDelete OpIntent = "delete"
)

// TxnOperation is one enqueued mutation within a Transaction.
type TxnOperation struct {
	Collection string
	DocID      string
	Intent     OpIntent
	Payload    map[string]any
}

// TransactionLogEntry is the persisted projection of a completed Transaction.
type TransactionLogEntry struct {
	ID          string
	State       TxnState
	Collections []string
	CreatedAt   time.Time
	CommittedAt time.Time
	Error       string
}
