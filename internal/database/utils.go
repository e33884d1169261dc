package database

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Scope is the visibility predicate applied to owner-scoped queries.
type Scope struct {
	OwnerId uuid.UUID

	// Rows without an owner are system resources and visible to everyone.
	IncludeSystem bool

	// Skips the owner predicate entirely.
	Unrestricted bool
}

func OwnedBy(ownerId uuid.UUID) Scope {
	return Scope{OwnerId: ownerId}
}

func VisibleTo(ownerId uuid.UUID) Scope {
	return Scope{OwnerId: ownerId, IncludeSystem: true}
}

func Unrestricted() Scope {
	return Scope{Unrestricted: true}
}

func (s Scope) apply(q *gorm.DB) *gorm.DB {
	if s.Unrestricted {
		return q
	}
	if s.IncludeSystem {
		return q.Where("(owner_id = ? OR owner_id IS NULL)", s.OwnerId)
	}
	return q.Where("owner_id = ?", s.OwnerId)
}

type Page struct {
	Skip  int
	Limit int
}

// AllRows selects every row, used when a caller needs the complete set.
var AllRows = Page{}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	if p.Skip > 0 {
		q = q.Offset(p.Skip)
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	return q
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}

func translateError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// Ref identifies a row and its owner.
type Ref struct {
	Id      uuid.UUID
	OwnerId uuid.NullUUID
}

// Detached lists the rows whose reference to a deleted row was cleared.
type Detached struct {
	Models []Ref
	Tasks  []Ref
}

// detach nulls column on every row of model that references id and returns
// the rows it changed.
func detach(txn *gorm.DB, model any, column string, id uuid.UUID) ([]Ref, error) {
	var refs []Ref
	if err := txn.Model(model).Select("id", "owner_id").Where(column+" = ?", id).Scan(&refs).Error; err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}
	if err := txn.Model(model).Where(column+" = ?", id).Update(column, nil).Error; err != nil {
		return nil, err
	}
	return refs, nil
}
