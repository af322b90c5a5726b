package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/nodeweave/nodeweave/pkg/models"
)

type GroupStore interface {
	GetMembership(groupID, memberID int) (*models.GroupMembership, error)
	// UpsertMembership applies a membership state idempotently; a redelivered
	// join request or status change lands on the existing row.
	UpsertMembership(m *models.GroupMembership) error
	SetMembershipStatus(groupID, memberID int, status string) error
	DeleteMembership(groupID, memberID int) error
	// ListMemberHostnames returns the distinct home hostnames of a group's
	// active remote members, the fan-out target set for group posts.
	ListMemberHostnames(groupID int) ([]string, error)
	GetSettings(groupID int) (*models.GroupSettings, error)
	SaveSettings(settings *models.GroupSettings) error
}

type postgresGroupStore struct {
	db *sqlx.DB
}

func NewGroups(dbconn *sqlx.DB) GroupStore {
	return &postgresGroupStore{db: dbconn}
}

func (s *postgresGroupStore) GetMembership(groupID, memberID int) (*models.GroupMembership, error) {
	var m models.GroupMembership
	err := s.db.Get(&m, `SELECT * FROM group_memberships WHERE group_id = $1 AND member_id = $2;`, groupID, memberID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *postgresGroupStore) UpsertMembership(m *models.GroupMembership) error {
	stmt := `
	INSERT INTO group_memberships (group_id, member_id, role, status, rules_agreed, question_responses)
	VALUES (:group_id, :member_id, :role, :status, :rules_agreed, :question_responses)
	ON CONFLICT (group_id, member_id)
	DO UPDATE SET
		role = EXCLUDED.role,
		status = EXCLUDED.status,
		rules_agreed = EXCLUDED.rules_agreed,
		question_responses = COALESCE(EXCLUDED.question_responses, group_memberships.question_responses)
	;`
	_, err := s.db.NamedExec(stmt, m)
	return err
}

func (s *postgresGroupStore) SetMembershipStatus(groupID, memberID int, status string) error {
	_, err := s.db.Exec(`UPDATE group_memberships SET status = $1 WHERE group_id = $2 AND member_id = $3;`, status, groupID, memberID)
	return err
}

func (s *postgresGroupStore) DeleteMembership(groupID, memberID int) error {
	_, err := s.db.Exec(`DELETE FROM group_memberships WHERE group_id = $1 AND member_id = $2;`, groupID, memberID)
	return err
}

func (s *postgresGroupStore) ListMemberHostnames(groupID int) ([]string, error) {
	stmt := `
	SELECT DISTINCT e.hostname
	FROM group_memberships m
	JOIN entities e ON e.id = m.member_id
	WHERE m.group_id = $1 AND m.status = $2 AND e.hostname IS NOT NULL;
	`
	hostnames := []string{}
	err := s.db.Select(&hostnames, stmt, groupID, models.MembershipActive)
	if err == sql.ErrNoRows {
		return []string{}, nil
	}
	return hostnames, err
}

func (s *postgresGroupStore) GetSettings(groupID int) (*models.GroupSettings, error) {
	var gs models.GroupSettings
	err := s.db.Get(&gs, `SELECT * FROM group_settings WHERE group_id = $1;`, groupID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gs, nil
}

func (s *postgresGroupStore) SaveSettings(settings *models.GroupSettings) error {
	stmt := `
	INSERT INTO group_settings (group_id, join_rules, join_rules_public, join_questions)
	VALUES (:group_id, :join_rules, :join_rules_public, :join_questions)
	ON CONFLICT (group_id)
	DO UPDATE SET
		join_rules = EXCLUDED.join_rules,
		join_rules_public = EXCLUDED.join_rules_public,
		join_questions = EXCLUDED.join_questions
	;`
	_, err := s.db.NamedExec(stmt, settings)
	return err
}
