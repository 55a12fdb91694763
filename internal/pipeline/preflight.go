package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/dbsmedya/goapidiscovery/internal/encquery"
	"github.com/dbsmedya/goapidiscovery/internal/logger"
	"github.com/dbsmedya/goapidiscovery/internal/restclient"
	"github.com/dbsmedya/goapidiscovery/internal/types"
)

// PreflightError represents a preflight check failure.
type PreflightError struct {
	Check   string
	Message string
	Tables  []string
}

func (e *PreflightError) Error() string {
	if len(e.Tables) > 0 {
		return fmt.Sprintf("%s: %s (tables: %v)", e.Check, e.Message, e.Tables)
	}
	return fmt.Sprintf("%s: %s", e.Check, e.Message)
}

var (
	// requiredMetadataTables must be readable for table discovery.
	requiredMetadataTables = []string{"sys_db_object", "sys_dictionary"}

	// catalogMetadataTables feed authoritative catalog resolution; the
	// resolver falls back when they are unreadable.
	catalogMetadataTables = []string{"sys_ws_definition", "sys_ws_version", "sys_scope"}
)

// PreflightReport lists the outcome of each check.
type PreflightReport struct {
	Passed          []string
	CatalogWarnings []string // catalog tables that could not be read
}

// PreflightChecker performs checks against the instance before a run.
type PreflightChecker struct {
	client Client
	logger *logger.Logger
}

// NewPreflightChecker creates a new preflight checker.
func NewPreflightChecker(client Client, log *logger.Logger) (*PreflightChecker, error) {
	if client == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &PreflightChecker{client: client, logger: log.WithComponent("preflight")}, nil
}

// RunAllChecks runs every preflight check and stops at the first failure.
func (p *PreflightChecker) RunAllChecks(ctx context.Context, allow []string) (*PreflightReport, error) {
	p.logger.Info("Running preflight checks...")
	report := &PreflightReport{}

	if err := p.ValidateAuthentication(ctx); err != nil {
		return report, err
	}
	report.Passed = append(report.Passed, "AUTHENTICATION_CHECK")

	if err := p.ValidateMetadataAccess(ctx); err != nil {
		return report, err
	}
	report.Passed = append(report.Passed, "METADATA_ACCESS_CHECK")

	if err := p.ValidateAllowlist(ctx, allow); err != nil {
		return report, err
	}
	report.Passed = append(report.Passed, "TABLE_EXISTENCE_CHECK")

	report.CatalogWarnings = p.WarnCatalogAccess(ctx)

	p.logger.Info("All preflight checks PASSED")
	return report, nil
}

func (p *PreflightChecker) readOne(ctx context.Context, table string) error {
	_, err := p.client.Get(ctx, restclient.TablePath(table), url.Values{"sysparm_limit": {"1"}})
	return err
}

// ValidateAuthentication checks that the configured credentials are
// accepted.
func (p *PreflightChecker) ValidateAuthentication(ctx context.Context) error {
	p.logger.Debug("Checking authentication...")

	err := p.readOne(ctx, requiredMetadataTables[0])
	if err == nil {
		p.logger.Debug("Authentication check PASSED")
		return nil
	}

	var authErr *restclient.AuthError
	if errors.As(err, &authErr) {
		return &PreflightError{
			Check:   "AUTHENTICATION_CHECK",
			Message: fmt.Sprintf("credentials rejected by instance (HTTP %d)", authErr.StatusCode),
		}
	}
	return fmt.Errorf("failed to reach instance: %w", err)
}

// ValidateMetadataAccess checks that the tables discovery depends on are
// readable.
func (p *PreflightChecker) ValidateMetadataAccess(ctx context.Context) error {
	p.logger.Debug("Checking metadata table access...")

	var denied []string
	for _, table := range requiredMetadataTables {
		if err := p.readOne(ctx, table); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Debugf("Cannot read %s: %v", table, err)
			denied = append(denied, table)
		}
	}

	if len(denied) > 0 {
		return &PreflightError{
			Check:   "METADATA_ACCESS_CHECK",
			Message: "Metadata tables are not readable with these credentials",
			Tables:  denied,
		}
	}

	p.logger.Debugf("Metadata access check PASSED (%d tables)", len(requiredMetadataTables))
	return nil
}

// ValidateAllowlist checks that every allowlisted table name is valid and
// registered on the instance. An empty allowlist passes.
func (p *PreflightChecker) ValidateAllowlist(ctx context.Context, allow []string) error {
	if len(allow) == 0 {
		return nil
	}
	p.logger.Debug("Checking allowlisted tables exist...")

	var invalid, names []string
	for _, name := range allow {
		if !encquery.IsValidName(name) {
			invalid = append(invalid, name)
			continue
		}
		names = append(names, name)
	}
	if len(invalid) > 0 {
		return &PreflightError{
			Check:   "TABLE_NAME_CHECK",
			Message: "Allowlist contains invalid table names",
			Tables:  invalid,
		}
	}

	existing := make(map[string]bool)
	for _, chunk := range encquery.Chunk(names, encquery.DefaultChunkSize) {
		rows, err := p.client.ListRecords(ctx, requiredMetadataTables[0], restclient.ListOptions{
			Fields: []string{"name"},
			Query:  encquery.New().In("name", chunk).String(),
		})
		if err != nil {
			return fmt.Errorf("failed to query tables: %w", err)
		}
		for _, row := range rows {
			existing[types.ToString(types.Unwrap(row["name"]))] = true
		}
	}

	var missing []string
	for _, name := range names {
		if !existing[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &PreflightError{
			Check:   "TABLE_EXISTENCE_CHECK",
			Message: "Tables not found on instance",
			Tables:  missing,
		}
	}

	p.logger.Debugf("Table existence check PASSED (%d tables)", len(names))
	return nil
}

// WarnCatalogAccess logs catalog metadata tables that cannot be read and
// returns them. Catalog resolution still works through its fallbacks.
func (p *PreflightChecker) WarnCatalogAccess(ctx context.Context) []string {
	var unreadable []string
	for _, table := range catalogMetadataTables {
		if err := p.readOne(ctx, table); err != nil {
			p.logger.Warnf("Catalog table %s is not readable, catalog resolution will fall back: %v", table, err)
			unreadable = append(unreadable, table)
		}
	}
	return unreadable
}

// Preflight runs the preflight checks with the configured allowlist.
func (p *Pipeline) Preflight(ctx context.Context) (*PreflightReport, error) {
	if p.client == nil {
		return nil, errNoClient
	}
	checker, err := NewPreflightChecker(p.client, p.logger)
	if err != nil {
		return nil, err
	}
	return checker.RunAllChecks(ctx, p.config.Filters.Allowlist)
}
