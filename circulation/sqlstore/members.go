package sqlstore

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/sqlstore/internal/adapters"
)

func memberColumns() []any {
	return []any{colID, colName, colMobile, colEmail, colBookID, colIssueDate, colCreatedAt}
}

func scanMember(rows adapters.DBRows) (circulation.Member, error) {
	var member circulation.Member
	var issueDate sql.NullTime

	if err := rows.Scan(
		&member.ID,
		&member.Name,
		&member.Mobile,
		&member.Email,
		&member.BookID,
		&issueDate,
		&member.CreatedAt,
	); err != nil {
		return circulation.Member{}, err
	}

	if issueDate.Valid {
		issued := issueDate.Time.UTC()
		member.IssueDate = &issued
	}

	member.CreatedAt = member.CreatedAt.UTC()

	return member, nil
}

// InsertMember implements circulation.MemberStore.
func (s *Store) InsertMember(ctx context.Context, member circulation.Member) error {
	insert := s.sqlBuilder().
		Insert(s.table(tableMembers)).
		Prepared(true).
		Rows(goqu.Record{
			colID:        member.ID,
			colName:      member.Name,
			colMobile:    member.Mobile,
			colEmail:     member.Email,
			colBookID:    member.BookID,
			colIssueDate: nullableTime(member.IssueDate),
			colCreatedAt: member.CreatedAt,
		})

	_, err := s.exec(ctx, operationInsertMember, insert)

	return err
}

// FindMemberByID implements circulation.MemberStore.
func (s *Store) FindMemberByID(ctx context.Context, id string) (circulation.Member, error) {
	return s.findMember(ctx, goqu.C(colID).Eq(id))
}

// FindMemberByMobile implements circulation.MemberStore.
func (s *Store) FindMemberByMobile(ctx context.Context, mobile string) (circulation.Member, error) {
	return s.findMember(ctx, goqu.C(colMobile).Eq(mobile))
}

// FindMemberByBookID implements circulation.MemberStore.
func (s *Store) FindMemberByBookID(ctx context.Context, bookID string) (circulation.Member, error) {
	return s.findMember(ctx, goqu.C(colBookID).Eq(bookID))
}

func (s *Store) findMember(ctx context.Context, condition exp.Expression) (circulation.Member, error) {
	selectStmt := s.sqlBuilder().
		From(s.table(tableMembers)).
		Prepared(true).
		Select(memberColumns()...).
		Where(condition).
		Order(goqu.I(colCreatedAt).Asc(), goqu.I(colID).Asc()).
		Limit(1)

	var member circulation.Member
	found := false

	err := s.query(ctx, operationFindMember, selectStmt, func(rows adapters.DBRows) error {
		var scanErr error
		member, scanErr = scanMember(rows)
		found = scanErr == nil

		return scanErr
	})
	if err != nil {
		return circulation.Member{}, err
	}

	if !found {
		return circulation.Member{}, circulation.ErrRecordNotFound
	}

	return member, nil
}

// ListMembers implements circulation.MemberStore. Members are ordered by creation time.
func (s *Store) ListMembers(ctx context.Context) ([]circulation.Member, error) {
	selectStmt := s.sqlBuilder().
		From(s.table(tableMembers)).
		Prepared(true).
		Select(memberColumns()...).
		Order(goqu.I(colCreatedAt).Asc(), goqu.I(colID).Asc())

	members := make([]circulation.Member, 0)
	err := s.query(ctx, operationListMembers, selectStmt, func(rows adapters.DBRows) error {
		member, err := scanMember(rows)
		if err != nil {
			return err
		}

		members = append(members, member)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return members, nil
}

// UpdateMember implements circulation.MemberStore.
func (s *Store) UpdateMember(ctx context.Context, member circulation.Member) error {
	update := s.sqlBuilder().
		Update(s.table(tableMembers)).
		Prepared(true).
		Set(goqu.Record{
			colName:      member.Name,
			colMobile:    member.Mobile,
			colEmail:     member.Email,
			colBookID:    member.BookID,
			colIssueDate: nullableTime(member.IssueDate),
		}).
		Where(goqu.C(colID).Eq(member.ID))

	rowsAffected, err := s.exec(ctx, operationUpdateMember, update)
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return circulation.ErrRecordNotFound
	}

	return nil
}

// DeleteMember implements circulation.MemberStore.
func (s *Store) DeleteMember(ctx context.Context, id string) (int64, error) {
	deleteStmt := s.sqlBuilder().
		Delete(s.table(tableMembers)).
		Prepared(true).
		Where(goqu.C(colID).Eq(id))

	return s.exec(ctx, operationDeleteMember, deleteStmt)
}
