package wire

import (
	"time"

	"palisade-hq/palisade/pkg/ledger"
)

// ApplyPayload is the body of an apply command. Either PolicyIDs is
// non-empty or All is true, never both empty.
type ApplyPayload struct {
	// PolicyIDs selects specific policies.
	PolicyIDs []string `json:"policy_ids,omitempty"`

	// All selects every applicable policy in the catalog.
	All bool `json:"all,omitempty"`

	// ContinueOnError keeps the batch going past a failed policy.
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	// SkipRecommended suppresses auto-inclusion of recommended dependencies.
	SkipRecommended bool `json:"skip_recommended,omitempty"`

	// SkipCheckpoint skips the restore checkpoint for this batch.
	SkipCheckpoint bool `json:"skip_checkpoint,omitempty"`

	// DryRun evaluates the batch without mutating the host or the ledger.
	DryRun bool `json:"dry_run,omitempty"`
}

// RevertPayload is the body of a revert command.
type RevertPayload struct {
	PolicyIDs       []string `json:"policy_ids,omitempty"`
	All             bool     `json:"all,omitempty"`
	ContinueOnError bool     `json:"continue_on_error,omitempty"`
	SkipCheckpoint  bool     `json:"skip_checkpoint,omitempty"`
}

// AuditPayload is the body of an audit command. Empty PolicyIDs audits the
// whole catalog.
type AuditPayload struct {
	PolicyIDs []string `json:"policy_ids,omitempty"`
}

// DriftPayload is the body of a drift command. Empty SnapshotID compares
// against the most recent snapshot.
type DriftPayload struct {
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// HistoryPayload is the body of a history command. All filters are optional.
type HistoryPayload struct {
	PolicyID   string `json:"policy_id,omitempty"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Operation  string `json:"operation,omitempty"`
	Mechanism  string `json:"mechanism,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// ListPoliciesPayload is the body of a list_policies command.
type ListPoliciesPayload struct {
	Mechanism string `json:"mechanism,omitempty"`
	Risk      string `json:"risk,omitempty"`
}

// BatchResult is the result payload for apply and revert commands.
type BatchResult struct {
	// State is the terminal batch state: completed or aborted.
	State string `json:"state"`

	// Success is true iff every attempted policy succeeded.
	Success bool `json:"success"`

	// DryRun marks results that did not touch the host.
	DryRun bool `json:"dry_run,omitempty"`

	SnapshotID   string `json:"snapshot_id,omitempty"`
	CheckpointID string `json:"checkpoint_id,omitempty"`

	// Applied, Failed and Skipped partition the attempted policies.
	// Aborted lists policies never attempted because the batch stopped.
	Applied []string `json:"applied"`
	Failed  []string `json:"failed"`
	Skipped []string `json:"skipped"`
	Aborted []string `json:"aborted,omitempty"`

	// AutoIncluded lists dependencies added beyond the explicit request.
	AutoIncluded []string `json:"auto_included,omitempty"`

	Warnings []string              `json:"warnings,omitempty"`
	Records  []ledger.ChangeRecord `json:"records,omitempty"`
}

// AuditEntry is one policy's observed state in an audit result.
type AuditEntry struct {
	PolicyID     string `json:"policy_id"`
	Mechanism    string `json:"mechanism"`
	Applicable   bool   `json:"applicable"`
	Applied      bool   `json:"applied"`
	CurrentValue string `json:"current_value,omitempty"`
	Exists       bool   `json:"exists"`
	Error        string `json:"error,omitempty"`
}

// AuditResult is the result payload for an audit command.
type AuditResult struct {
	GeneratedAt  time.Time    `json:"generated_at"`
	Entries      []AuditEntry `json:"entries"`
	AppliedCount int          `json:"applied_count"`
}

// DriftItem is one divergence between a snapshot and observed state.
type DriftItem struct {
	PolicyID string `json:"policy_id"`

	// Kind is applied_state, current_value or missing_policy.
	Kind string `json:"kind"`

	// Severity mirrors the policy's risk level.
	Severity string `json:"severity"`

	Expected string `json:"expected,omitempty"`
	Observed string `json:"observed,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// DriftResult is the result payload for a drift command.
type DriftResult struct {
	SnapshotID string      `json:"snapshot_id"`
	SnapshotAt time.Time   `json:"snapshot_at"`
	CheckedAt  time.Time   `json:"checked_at"`
	Clean      bool        `json:"clean"`
	Items      []DriftItem `json:"items"`
}

// HistoryResult is the result payload for a history command.
type HistoryResult struct {
	Records []ledger.ChangeRecord `json:"records"`

	// Total is the match count before limit and offset.
	Total int64 `json:"total"`
}

// PolicySummary is one catalog entry in a list_policies result.
type PolicySummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Mechanism   string   `json:"mechanism"`
	Risk        string   `json:"risk"`
	Reversible  bool     `json:"reversible"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// ListPoliciesResult is the result payload for a list_policies command.
type ListPoliciesResult struct {
	CatalogVersion string          `json:"catalog_version"`
	Policies       []PolicySummary `json:"policies"`
}

// StateResult is the result payload for a get_state command.
type StateResult struct {
	Version          string    `json:"version"`
	StartedAt        time.Time `json:"started_at"`
	CatalogVersion   string    `json:"catalog_version"`
	PolicyCount      int       `json:"policy_count"`
	Busy             bool      `json:"busy"`
	LedgerBackend    string    `json:"ledger_backend"`
	LatestSnapshotID string    `json:"latest_snapshot_id,omitempty"`
	LatestSnapshotAt time.Time `json:"latest_snapshot_at,omitempty"`
}

// PingResult is the result payload for a ping command.
type PingResult struct {
	ProtocolVersion int       `json:"protocol_version"`
	ServerVersion   string    `json:"server_version"`
	Time            time.Time `json:"time"`
}
