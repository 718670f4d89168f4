// Package orchestrator coordinates the correction workflow: it reads a
// table, decides each record, previews the result and patches the file,
// recording every change in the audit trail.
package orchestrator

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/audit"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/classifier"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/config"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/lookup"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/output"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/patcher"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/reference"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/scanner"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/textenc"
)

// MissingFieldError reports a table without the district field.
type MissingFieldError struct {
	Path  string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("MISSING_FIELD: %s has no %s field", e.Path, e.Field)
}

// Orchestrator runs corrections with one configuration and set of options.
type Orchestrator struct {
	config *config.Configuration
	opts   config.Options
	out    *output.Output

	lookup *lookup.Table

	auditWriter *audit.AuditWriter
	identity    *audit.IdentityResolver
	appVersion  string
	machineID   string
}

// New creates an Orchestrator. A nil cfg uses the defaults and a nil out
// writes to the console with the default settings.
func New(cfg *config.Configuration, opts config.Options, out *output.Output) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}
	if out == nil {
		out = output.New(output.DefaultConfig())
	}
	return &Orchestrator{
		config:   cfg,
		opts:     opts,
		out:      out,
		identity: audit.NewIdentityResolver(),
	}
}

// SetAuditWriter enables the audit trail. Runs are tagged with appVersion
// and machineID.
func (o *Orchestrator) SetAuditWriter(w *audit.AuditWriter, appVersion, machineID string) {
	o.auditWriter = w
	o.appVersion = appVersion
	o.machineID = machineID
}

// LoadReference loads the dataset used by later runs.
func (o *Orchestrator) LoadReference(path string) error {
	entries, err := reference.Load(path)
	if err != nil {
		return err
	}
	o.lookup = lookup.Build(entries)
	o.out.Verbose("Loaded %d districts in %d provinces from %s", o.lookup.Size(), len(o.lookup.Regions()), path)
	return nil
}

// Run corrects a single table. The result goes to the --out path when one
// is given, and replaces the source otherwise.
func (o *Orchestrator) Run(tablePath, referencePath string) (*Summary, error) {
	if err := o.opts.Validate(false); err != nil {
		return nil, err
	}
	if err := o.LoadReference(referencePath); err != nil {
		return nil, err
	}

	dest := tablePath
	if o.opts.Output != "" {
		dest = o.opts.Output
	}

	summary := newSummary()
	o.startRun(summary)

	result := o.processTable(tablePath, dest)
	summary.add(result)

	o.endRun(summary)
	if result.Err != nil {
		return summary, result.Err
	}
	return summary, nil
}

// RunBatch corrects every table in dir in place. A failing table is
// reported and counted, and the batch carries on.
func (o *Orchestrator) RunBatch(dir, referencePath string) (*Summary, error) {
	if err := o.opts.Validate(true); err != nil {
		return nil, err
	}
	if err := o.LoadReference(referencePath); err != nil {
		return nil, err
	}

	tables, err := scanner.ScanTables(dir, scanner.DefaultScanOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	summary := newSummary()
	o.startRun(summary)

	o.out.BeginTables(len(tables))
	for i, t := range tables {
		o.out.AtTable(i+1, t.Name)
		result := o.processTable(t.FullPath, t.FullPath)
		summary.add(result)
		if result.Err != nil {
			o.out.Error("%s: %v", t.Name, result.Err)
		}
	}
	o.out.EndTables()

	o.endRun(summary)
	o.out.BatchSummary(summary.Totals())
	return summary, nil
}

// HandleTable corrects one table in place for watch mode. The reference
// must already be loaded.
func (o *Orchestrator) HandleTable(path string) (bool, error) {
	if o.lookup == nil {
		return false, errors.New("reference dataset not loaded")
	}

	summary := newSummary()
	o.startRun(summary)
	result := o.processTable(path, path)
	summary.add(result)
	o.endRun(summary)

	return result.Patched, result.Err
}

// Decide reads the table at path and classifies each live record without
// writing anything.
func (o *Orchestrator) Decide(path string) (*TableResult, error) {
	if o.lookup == nil {
		return nil, errors.New("reference dataset not loaded")
	}
	_, result, err := o.decide(path)
	return result, err
}

func (o *Orchestrator) readEncoding(path string) textenc.Encoding {
	enc, found, err := textenc.ReadCompanion(path)
	if err != nil {
		o.out.Warn("%s: %v; reading as %s", textenc.CompanionPath(path), err, textenc.CP1254.Name())
		return textenc.CP1254
	}
	if found {
		o.out.Verbose("%s declares %s", textenc.CompanionPath(path), enc.Name())
	}
	return enc
}

// decide opens the table and classifies it. The returned table is nil on
// error.
func (o *Orchestrator) decide(path string) (*dbf.Table, *TableResult, error) {
	result := &TableResult{Source: path}

	table, err := dbf.Open(path, o.readEncoding(path))
	if err != nil {
		return nil, result, err
	}

	field, ok := table.Field(config.TargetField)
	if !ok {
		return nil, result, &MissingFieldError{Path: path, Field: config.TargetField}
	}
	result.Field = field

	regionField, hasRegion := table.FirstField(o.config.RegionFields...)
	if !hasRegion {
		o.out.Warn("%s: none of %v present; records are matched without a province", filepath.Base(path), o.config.RegionFields)
	}

	policy := classifier.Policy{ASCII: o.opts.ASCII, Force: o.opts.Force}
	enc := o.opts.Encoding()
	for _, rec := range table.Records() {
		if rec.Deleted {
			continue
		}
		region := ""
		if hasRegion {
			region = rec.Values[regionField.Name]
		}
		d := classifier.Classify(o.lookup, region, rec.Values[field.Name], policy)
		if d.NeedsUpdate() && !o.opts.Force && alreadyStored(table, rec.Index, field, enc, d.Replacement) {
			d.Status = classifier.OK
		}
		result.Records++
		result.Decisions = append(result.Decisions, d)
		if d.NeedsUpdate() {
			result.Changes = append(result.Changes, Change{Record: rec.Index, Decision: d})
		}
	}
	return table, result, nil
}

// alreadyStored reports whether the field already holds the bytes a patch
// would write. A truncated name or a UTF-8 table read without its companion
// decodes differently from the replacement yet needs no rewrite.
func alreadyStored(table *dbf.Table, index int, field dbf.Field, enc textenc.Encoding, text string) bool {
	raw, err := table.RawField(index, field)
	if err != nil {
		return false
	}
	return bytes.Equal(raw, enc.Fit(text, field.Length))
}

func (o *Orchestrator) processTable(src, dest string) *TableResult {
	table, result, err := o.decide(src)
	result.Destination = dest
	if err != nil {
		result.Err = err
		o.recordError(src, err)
		return result
	}

	o.out.Verbose("%s: %d live records, %d to update (%s)", filepath.Base(src), result.Records, len(result.Changes), table.Encoding.Name())

	if len(result.Changes) == 0 {
		o.out.NothingToChange(src)
		if o.auditWriter != nil && !o.opts.DryRun {
			o.auditWriter.RecordNoChanges(src)
		}
		return result
	}

	o.out.Preview(result.Decisions)

	enc := o.opts.Encoding()
	if o.opts.DryRun {
		o.out.TableSummary(o.totals(result, enc))
		return result
	}

	plan := patcher.NewPlan(table, result.Field, enc)
	if !o.opts.NoCodepage {
		codepage := enc.CodepageByte()
		plan.Codepage = &codepage
	}
	plan.RepairOffsets = !o.opts.NoRepairOffsets
	plan.WriteCompanion = !o.opts.NoCompanion
	for _, c := range result.Changes {
		plan.Updates = append(plan.Updates, patcher.Update{Record: c.Record, Text: c.Decision.Replacement})
	}

	var before *audit.FileIdentity
	companionExisted, companionBefore := false, ""
	if o.auditWriter != nil {
		before, _ = o.identity.CaptureIdentity(src)
		companionExisted, companionBefore = readCompanionState(dest)
	}

	applied, err := patcher.Apply(src, dest, plan)
	if err != nil {
		result.Err = err
		if applied != nil {
			// The table was written but the companion file was not.
			result.Patched = true
			result.BytesWritten = int64(applied.BytesWritten)
		}
		o.recordError(src, err)
		return result
	}
	result.Patched = true
	result.BytesWritten = int64(applied.BytesWritten)

	if o.auditWriter != nil {
		o.recordPatch(table, result, plan, before, companionExisted, companionBefore)
	}

	o.out.TableSummary(o.totals(result, enc))
	return result
}

func (o *Orchestrator) totals(result *TableResult, enc textenc.Encoding) output.TableTotals {
	return output.TableTotals{
		Table:        result.Source,
		Destination:  result.Destination,
		Records:      result.Records,
		Fixes:        len(result.Changes),
		BytesWritten: result.BytesWritten,
		Encoding:     enc.Name(),
		DryRun:       o.opts.DryRun,
	}
}

func readCompanionState(tablePath string) (bool, string) {
	data, err := os.ReadFile(textenc.CompanionPath(tablePath))
	if err != nil {
		return false, ""
	}
	return true, string(data)
}

func (o *Orchestrator) startRun(summary *Summary) {
	if o.auditWriter == nil || o.opts.DryRun {
		return
	}
	runID, err := o.auditWriter.StartRun(o.appVersion, o.machineID)
	if err != nil {
		o.out.Warn("audit: %v", err)
		return
	}
	summary.RunID = runID
}

func (o *Orchestrator) endRun(summary *Summary) {
	if o.auditWriter == nil || summary.RunID == "" {
		return
	}
	status := audit.RunStatusCompleted
	if summary.Failed > 0 {
		status = audit.RunStatusFailed
	}
	if err := o.auditWriter.EndRun(summary.RunID, status, summary.auditSummary()); err != nil {
		o.out.Warn("audit: %v", err)
	}
}

func (o *Orchestrator) recordPatch(table *dbf.Table, result *TableResult, plan patcher.Plan, before *audit.FileIdentity, companionExisted bool, companionBefore string) {
	after, err := o.identity.CaptureIdentity(result.Destination)
	if err != nil {
		o.out.Warn("audit: %v", err)
	}

	details := audit.PatchDetails{
		Field:              result.Field.Name,
		Encoding:           plan.Encoding.Name(),
		HeaderLength:       plan.HeaderLength,
		RecordLength:       plan.RecordLength,
		FieldOffset:        plan.FieldOffset,
		FieldLength:        plan.FieldLength,
		Updates:            len(plan.Updates),
		CodepageWritten:    plan.Codepage != nil,
		CodepageBefore:     table.Header.Codepage,
		AddressesRewritten: plan.RepairOffsets,
		CompanionWritten:   plan.WriteCompanion,
		CompanionExisted:   companionExisted,
		CompanionBefore:    companionBefore,
		IdentityBefore:     before,
	}
	if plan.Codepage != nil {
		details.CodepageAfter = *plan.Codepage
	} else {
		details.CodepageAfter = table.Header.Codepage
	}
	if plan.RepairOffsets {
		details.AddressesBefore = table.Addresses()
	}

	if err := o.auditWriter.RecordPatch(result.Source, result.Destination, after, details); err != nil {
		o.out.Warn("audit: %v", err)
		return
	}

	for _, c := range result.Changes {
		oldRaw, err := table.RawField(c.Record, result.Field)
		if err != nil {
			o.out.Warn("audit: %v", err)
			continue
		}
		change := audit.FieldChange{
			Record:  c.Record,
			Region:  c.Decision.Region,
			Reason:  string(c.Decision.Reason),
			OldText: c.Decision.Current,
			NewText: c.Decision.Replacement,
			OldRaw:  audit.HexBytes(oldRaw),
			NewRaw:  audit.HexBytes(plan.Encoding.Fit(c.Decision.Replacement, result.Field.Length)),
		}
		if err := o.auditWriter.RecordFieldUpdate(result.Destination, change); err != nil {
			o.out.Warn("audit: %v", err)
		}
	}
}

func (o *Orchestrator) recordError(src string, err error) {
	if o.auditWriter == nil || o.opts.DryRun {
		return
	}
	if werr := o.auditWriter.RecordError(src, errorType(err), err.Error(), "fix"); werr != nil {
		o.out.Warn("audit: %v", werr)
	}
}

// errorType returns the Type code of the typed errors a run can produce.
func errorType(err error) string {
	var missing *MissingFieldError
	var format *dbf.FormatError
	var patch *patcher.PatchError
	var load *reference.LoadError
	switch {
	case errors.As(err, &missing):
		return "MISSING_FIELD"
	case errors.As(err, &format):
		return string(format.Type)
	case errors.As(err, &patch):
		return string(patch.Type)
	case errors.As(err, &load):
		return string(load.Type)
	default:
		return "IO_ERROR"
	}
}
