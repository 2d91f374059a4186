package visitor

import (
	"context"
	"strings"
	"time"

	"gatepass/cmd/internal/ids"
)

// Visitor is a reusable identity record. Phone holds the normalized number
// and is the natural key for blacklist matching.
type Visitor struct {
	ID       string
	Phone    string
	FullName string
	Email    *string
	PhotoURL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewVisitorInput describes a visitor lookup-or-create request.
type NewVisitorInput struct {
	Phone    string
	FullName string
	Email    *string
	Now      time.Time
}

// Store is the persistence boundary for visitors.
type Store interface {
	// Create inserts a new visitor record.
	Create(ctx context.Context, v Visitor) (Visitor, error)

	// GetByID loads a visitor by id.
	GetByID(ctx context.Context, id string) (Visitor, error)

	// GetByPhone loads a visitor by normalized phone.
	GetByPhone(ctx context.Context, phone string) (Visitor, error)

	// Update persists corrections to name/email/photo. Phone is immutable.
	Update(ctx context.Context, v Visitor) (Visitor, error)
}

// GetOrCreate resolves a visitor by normalized phone, creating the record if
// absent. An existing record picks up a corrected name or newly supplied
// email, matching how gate operators fix typos from paper registers.
func GetOrCreate(ctx context.Context, st Store, in NewVisitorInput) (Visitor, error) {
	const op = "visitor.GetOrCreate"
	if st == nil {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Visitor{}, err
	}

	phone := NormalizePhone(in.Phone)
	name := strings.TrimSpace(in.FullName)
	if phone == "" || name == "" {
		return Visitor{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "phone and name required"}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	existing, err := st.GetByPhone(ctx, phone)
	if err == nil {
		changed := false
		if existing.FullName != name {
			existing.FullName = name
			changed = true
		}
		if in.Email != nil {
			email := NormalizeEmail(*in.Email)
			if email != "" && (existing.Email == nil || *existing.Email != email) {
				existing.Email = &email
				changed = true
			}
		}
		if !changed {
			return existing, nil
		}
		existing.UpdatedAt = now
		return st.Update(ctx, existing)
	}
	if !IsNotFound(err) {
		return Visitor{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Visitor{}, err
	}
	v := Visitor{
		ID:        id,
		Phone:     phone,
		FullName:  name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Email != nil {
		if email := NormalizeEmail(*in.Email); email != "" {
			v.Email = &email
		}
	}
	return st.Create(ctx, v)
}
