package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"

	"github.com/xavierca1/immigration-crm/internal/entity"
)

type ProspectRepository struct {
	DB *sql.DB
}

func NewProspectRepository(db *sql.DB) *ProspectRepository {
	return &ProspectRepository{DB: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const prospectColumns = `
	id, name, email, phone, country, visa_type, message, source, status,
	COALESCE(assigned_to, ''), COALESCE(assigned_to_name, ''),
	COALESCE(payment_50k_amount, 0), COALESCE(payment_method, ''), COALESCE(transaction_reference, ''),
	COALESCE(invoice_number, ''), COALESCE(payment_idempotency_key, ''), payment_confirmed_at,
	COALESCE(client_id, ''), COALESCE(case_id, ''),
	conversion_probability, lead_score, version, created_at, updated_at`

type txKey struct{}

// withTx exposes the running transaction to collaborators called from a TransitionFunc so
// they reuse its connection. Taking a second pooled connection while the row lock is held
// can exhaust the pool.
func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// queryerFrom returns the transaction carried by ctx, or fallback outside a transition.
func queryerFrom(ctx context.Context, fallback queryer) queryer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return fallback
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProspect(row rowScanner) (*entity.Prospect, error) {
	p := &entity.Prospect{}
	var confirmedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.Name, &p.Email, &p.Phone, &p.Country, &p.VisaType, &p.Message, &p.Source, &p.Status,
		&p.AssignedTo, &p.AssignedToName,
		&p.Payment50kAmount, &p.PaymentMethod, &p.TransactionReference,
		&p.InvoiceNumber, &p.PaymentIdempotencyKey, &confirmedAt,
		&p.ClientID, &p.CaseID,
		&p.ConversionProbability, &p.LeadScore, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		p.PaymentConfirmedAt = &t
	}
	p.ConsultantNotes = []entity.ConsultantNote{}
	p.StatusHistory = []entity.StatusChange{}
	return p, nil
}

func (r *ProspectRepository) Create(ctx context.Context, p *entity.Prospect) error {
	query := `
		INSERT INTO prospects (
			id, name, email, phone, country, visa_type, message, source, status,
			conversion_probability, lead_score, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	if p.Version == 0 {
		p.Version = 1
	}
	_, err := r.DB.ExecContext(ctx, query,
		p.ID, p.Name, p.Email, p.Phone, p.Country, p.VisaType, p.Message, p.Source, p.Status,
		p.ConversionProbability, p.LeadScore, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("prospect %s already exists: %w", p.ID, err)
		}
		log.Printf("❌ Database error creating prospect: %v", err)
		return err
	}
	return nil
}

func (r *ProspectRepository) FindByID(ctx context.Context, id string) (*entity.Prospect, error) {
	return r.load(ctx, r.DB, id, "")
}

// load reads the prospect with its notes and history. lock is appended to the row query
// ("FOR UPDATE", "FOR SHARE" or "").
func (r *ProspectRepository) load(ctx context.Context, q queryer, id, lock string) (*entity.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE id = $1 ` + lock
	p, err := scanProspect(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrProspectNotFound
		}
		return nil, fmt.Errorf("load prospect %s: %w", id, err)
	}
	if err := r.attachChildren(ctx, q, []*entity.Prospect{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// attachChildren fills notes and status history for a page of prospects in two queries.
func (r *ProspectRepository) attachChildren(ctx context.Context, q queryer, ps []*entity.Prospect) error {
	if len(ps) == 0 {
		return nil
	}
	byID := make(map[string]*entity.Prospect, len(ps))
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT prospect_id, id, content, created_by, created_at
		FROM prospect_notes WHERE prospect_id = ANY($1) ORDER BY seq ASC`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	for rows.Next() {
		var prospectID string
		var n entity.ConsultantNote
		if err := rows.Scan(&prospectID, &n.ID, &n.Content, &n.CreatedBy, &n.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan note: %w", err)
		}
		byID[prospectID].ConsultantNotes = append(byID[prospectID].ConsultantNotes, n)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx, `
		SELECT prospect_id, from_status, to_status, actor_id, actor_role, changed_at
		FROM prospect_status_history WHERE prospect_id = ANY($1) ORDER BY seq ASC`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load status history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var prospectID string
		var c entity.StatusChange
		if err := rows.Scan(&prospectID, &c.From, &c.To, &c.ActorID, &c.ActorRole, &c.At); err != nil {
			return fmt.Errorf("scan status change: %w", err)
		}
		byID[prospectID].StatusHistory = append(byID[prospectID].StatusHistory, c)
	}
	return rows.Err()
}

func (r *ProspectRepository) Transition(ctx context.Context, id string, fn entity.TransitionFunc) (*entity.Prospect, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	current, err := r.load(ctx, tx, id, "FOR UPDATE")
	if err != nil {
		return nil, err
	}

	next, mutation, err := fn(withTx(ctx, tx), current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, tx.Commit()
	}

	var confirmedAt sql.NullTime
	if next.PaymentConfirmedAt != nil {
		confirmedAt = sql.NullTime{Time: *next.PaymentConfirmedAt, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE prospects SET
			status = $3,
			assigned_to = $4,
			assigned_to_name = $5,
			payment_50k_amount = $6,
			payment_method = $7,
			transaction_reference = $8,
			invoice_number = $9,
			payment_idempotency_key = $10,
			payment_confirmed_at = $11,
			client_id = $12,
			case_id = $13,
			conversion_probability = $14,
			lead_score = $15,
			updated_at = $16,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		id, current.Version,
		next.Status,
		nullString(next.AssignedTo), nullString(next.AssignedToName),
		nullInt(next.Payment50kAmount), nullString(next.PaymentMethod), nullString(next.TransactionReference),
		nullString(next.InvoiceNumber), nullString(next.PaymentIdempotencyKey), confirmedAt,
		nullString(next.ClientID), nullString(next.CaseID),
		next.ConversionProbability, next.LeadScore, next.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("invoice number %s already used: %w", next.InvoiceNumber, err)
		}
		return nil, fmt.Errorf("update prospect %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, entity.ErrVersionConflict
	}

	if mutation != nil && mutation.Transition != nil {
		c := mutation.Transition
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prospect_status_history (prospect_id, from_status, to_status, actor_id, actor_role, changed_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, c.From, c.To, c.ActorID, c.ActorRole, c.At,
		)
		if err != nil {
			return nil, fmt.Errorf("record status change: %w", err)
		}
	}

	saved, err := r.load(ctx, tx, id, "")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return saved, nil
}

func (r *ProspectRepository) AppendNote(ctx context.Context, id string, note entity.ConsultantNote, guard entity.NoteGuard) (*entity.Prospect, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin note append: %w", err)
	}
	defer tx.Rollback()

	var status entity.Status
	err = tx.QueryRowContext(ctx, `SELECT status FROM prospects WHERE id = $1 FOR SHARE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrProspectNotFound
		}
		return nil, fmt.Errorf("lock prospect %s: %w", id, err)
	}
	if guard != nil {
		if err := guard(status); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prospect_notes (id, prospect_id, content, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		note.ID, id, note.Content, note.CreatedBy, note.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}

	saved, err := r.load(ctx, tx, id, "")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit note: %w", err)
	}
	return saved, nil
}

var sortColumns = map[string]string{
	"created_at": "created_at",
	"name":       "LOWER(name)",
	"lead_score": "lead_score",
	"status":     "array_position(ARRAY['nouveau','assigne_employe','paiement_50k','en_consultation','converti_client','archive'], status)",
}

func buildFilter(q entity.ProspectQuery) (string, []any) {
	var where []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if q.Status != "" {
		add("status = $%d", q.Status)
	} else if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}
	if q.AssignedTo != "" {
		add("assigned_to = $%d", q.AssignedTo)
	}
	if q.Search != "" {
		args = append(args, "%"+strings.ToLower(q.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(LOWER(name) LIKE $%[1]d OR LOWER(email) LIKE $%[1]d OR LOWER(phone) LIKE $%[1]d OR LOWER(country) LIKE $%[1]d OR LOWER(visa_type) LIKE $%[1]d)", n))
	}

	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (r *ProspectRepository) List(ctx context.Context, q entity.ProspectQuery) ([]*entity.Prospect, int, error) {
	where, args := buildFilter(q)

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM prospects`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prospects: %w", err)
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = sortColumns["created_at"]
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	query := `SELECT ` + prospectColumns + ` FROM prospects` + where +
		fmt.Sprintf(" ORDER BY %s %s, id ASC", column, direction)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list prospects: %w", err)
	}
	var prospects []*entity.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan prospect: %w", err)
		}
		prospects = append(prospects, p)
	}
	if err := rows.Close(); err != nil {
		return nil, 0, err
	}

	if err := r.attachChildren(ctx, r.DB, prospects); err != nil {
		return nil, 0, err
	}
	return prospects, total, nil
}

func (r *ProspectRepository) CountByStatus(ctx context.Context, assignedTo string) (map[entity.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM prospects`
	var args []any
	if assignedTo != "" {
		query += ` WHERE assigned_to = $1`
		args = append(args, assignedTo)
	}
	query += ` GROUP BY status`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[entity.Status]int)
	for rows.Next() {
		var status entity.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}
