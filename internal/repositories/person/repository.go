package person

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/banyan/pkg/database"
	"github.com/Ramsey-B/banyan/pkg/models"
	"github.com/Ramsey-B/banyan/pkg/tracing"
)

const personColumns = "id, group_id, first_name, last_name, gender, birth_date, death_date, birth_place, current_spouse_id, created_by, version, created_at, updated_at"

// Repository handles person persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) DB() database.DB {
	return r.db
}

// GetByID returns the person with the given id.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(personColumns)
	sb.From("persons")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var p models.Person
	if err := database.Resolve(ctx, r.db).GetContext(ctx, &p, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": id}).Error("Failed to get person")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get person: %v", err)
	}
	return &p, nil
}

// ListByGroup returns all persons in a group ordered by creation time.
func (r *Repository) ListByGroup(ctx context.Context, groupID string) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ListByGroup")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(personColumns)
	sb.From("persons")
	sb.Where(sb.Equal("group_id", groupID))
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var persons []models.Person
	if err := database.Resolve(ctx, r.db).SelectContext(ctx, &persons, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID}).Error("Failed to list persons by group")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to list persons: %v", err)
	}
	return persons, nil
}

// SearchByName returns persons in a group whose first or last name matches the
// query (case-insensitive substring).
func (r *Repository) SearchByName(ctx context.Context, groupID, name string) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.SearchByName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(personColumns)
	sb.From("persons")
	pattern := "%" + name + "%"
	sb.Where(
		sb.Equal("group_id", groupID),
		sb.Or(sb.ILike("first_name", pattern), sb.ILike("last_name", pattern)),
	)
	sb.OrderBy("last_name ASC", "first_name ASC")

	query, args := sb.Build()
	var persons []models.Person
	if err := database.Resolve(ctx, r.db).SelectContext(ctx, &persons, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID, "name": name}).Error("Failed to search persons")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to search persons: %v", err)
	}
	return persons, nil
}

// Create inserts a new person. The caller controls the id and initial version.
func (r *Repository) Create(ctx context.Context, p *models.Person) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Create")
	defer span.End()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("persons")
	ib.Cols("id", "group_id", "first_name", "last_name", "gender", "birth_date", "death_date", "birth_place", "current_spouse_id", "created_by", "version", "created_at", "updated_at")
	ib.Values(p.ID, p.GroupID, p.FirstName, p.LastName, p.Gender, p.BirthDate, p.DeathDate, p.BirthPlace, p.CurrentSpouseID, p.CreatedBy, p.Version, p.CreatedAt, p.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": p.ID, "group_id": p.GroupID}).Error("Failed to create person")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create person: %v", err)
	}
	return p, nil
}

// Update saves the person's mutable fields and atomically bumps its version.
// The bump happens in the database so concurrent writers cannot both observe
// the same version.
func (r *Repository) Update(ctx context.Context, p *models.Person) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Update")
	defer span.End()

	query := `
		UPDATE persons
		SET first_name = $2,
		    last_name = $3,
		    gender = $4,
		    birth_date = $5,
		    death_date = $6,
		    birth_place = $7,
		    current_spouse_id = $8,
		    version = version + 1,
		    updated_at = $9
		WHERE id = $1
		RETURNING version
	`
	now := time.Now().UTC()
	var version int
	err := database.Resolve(ctx, r.db).GetContext(ctx, &version, query,
		p.ID, p.FirstName, p.LastName, p.Gender, p.BirthDate, p.DeathDate, p.BirthPlace, p.CurrentSpouseID, now)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "person %s not found", p.ID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": p.ID}).Error("Failed to update person")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update person: %v", err)
	}

	p.Version = version
	p.UpdatedAt = now
	return p, nil
}

// Delete removes a person row. Relationship edges are the caller's concern.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("persons")
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	if _, err := database.Resolve(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": id}).Error("Failed to delete person")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to delete person: %v", err)
	}
	return nil
}
