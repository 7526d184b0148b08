package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/nibbl/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS agent_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		imessage_id TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS preferences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id TEXT NOT NULL REFERENCES members(id),
		category TEXT NOT NULL,
		detail TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0.5,
		source TEXT NOT NULL DEFAULT 'conversation',
		extracted_from TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_preferences_member ON preferences(member_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		triggered_by TEXT,
		plan_start_date INTEGER,
		plan_end_date INTEGER,
		state_entered_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);

	CREATE TABLE IF NOT EXISTS recipes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		name TEXT NOT NULL,
		description TEXT,
		planned_date INTEGER NOT NULL,
		servings INTEGER NOT NULL DEFAULT 4,
		prep_time_minutes INTEGER,
		cook_time_minutes INTEGER,
		cuisine TEXT,
		tags TEXT,
		instructions TEXT,
		approved INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_recipes_session ON recipes(session_id);

	CREATE TABLE IF NOT EXISTS recipe_ingredients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recipe_id TEXT NOT NULL REFERENCES recipes(id),
		name TEXT NOT NULL,
		quantity REAL,
		unit TEXT,
		category TEXT NOT NULL DEFAULT 'other',
		optional INTEGER NOT NULL DEFAULT 0,
		already_available INTEGER NOT NULL DEFAULT 0,
		product_id TEXT,
		product_name TEXT,
		added_to_cart INTEGER NOT NULL DEFAULT 0,
		search_status TEXT NOT NULL DEFAULT 'pending'
	);
	CREATE INDEX IF NOT EXISTS idx_ingredients_recipe ON recipe_ingredients(recipe_id);

	CREATE TABLE IF NOT EXISTS conversation_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		member_id TEXT,
		direction TEXT NOT NULL,
		message_text TEXT NOT NULL,
		rowid_ref INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_convlog_session ON conversation_log(session_id);

	CREATE TABLE IF NOT EXISTS meal_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recipe_name TEXT NOT NULL,
		cuisine TEXT,
		main_protein TEXT,
		tags TEXT,
		cooked_date INTEGER NOT NULL,
		rating REAL,
		session_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_meal_history_date ON meal_history(cooked_date);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetState retrieves a value from the agent key/value state table.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM agent_state WHERE key = ?`, key)
	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan state %q: %w", key, err)
	}
	return value, nil
}

// SetState stores a value in the agent key/value state table.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// UpsertMember creates or updates a household member.
func (s *SQLiteStore) UpsertMember(ctx context.Context, member *domain.Member) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, name, imessage_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(imessage_id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role`,
		member.ID, member.Name, member.IMessageID, string(member.Role), member.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func scanMembers(rows *sql.Rows) ([]*domain.Member, error) {
	defer rows.Close()
	var members []*domain.Member
	for rows.Next() {
		var m domain.Member
		var role string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Name, &m.IMessageID, &role, &createdAt); err != nil {
			return nil, fmt.Errorf("scan member row: %w", err)
		}
		m.Role = domain.Role(role)
		m.CreatedAt = time.Unix(createdAt, 0)
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member rows: %w", err)
	}
	return members, nil
}

// GetMembers retrieves all household members.
func (s *SQLiteStore) GetMembers(ctx context.Context) ([]*domain.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, imessage_id, role, created_at FROM members ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	return scanMembers(rows)
}

// GetMemberByIMessageID looks up a member by phone number or Apple ID.
func (s *SQLiteStore) GetMemberByIMessageID(ctx context.Context, imessageID string) (*domain.Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, imessage_id, role, created_at FROM members WHERE imessage_id = ?`,
		imessageID,
	)
	var m domain.Member
	var role string
	var createdAt int64
	err := row.Scan(&m.ID, &m.Name, &m.IMessageID, &role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan member row: %w", err)
	}
	m.Role = domain.Role(role)
	m.CreatedAt = time.Unix(createdAt, 0)
	return &m, nil
}

// GetParents retrieves all members with the parent role.
func (s *SQLiteStore) GetParents(ctx context.Context) ([]*domain.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, imessage_id, role, created_at FROM members
		 WHERE role = ? ORDER BY created_at`, string(domain.RoleParent))
	if err != nil {
		return nil, fmt.Errorf("query parents: %w", err)
	}
	return scanMembers(rows)
}

// AddPreference inserts a new preference row and returns its ID.
func (s *SQLiteStore) AddPreference(ctx context.Context, pref *domain.Preference) (int64, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (member_id, category, detail, confidence, source, extracted_from, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pref.MemberID, string(pref.Category), pref.Detail, pref.Confidence,
		pref.Source, pref.ExtractedFrom, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert preference: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("preference last insert id: %w", err)
	}
	return id, nil
}

// GetPreferences retrieves a member's preferences ordered by confidence descending.
func (s *SQLiteStore) GetPreferences(ctx context.Context, memberID string) ([]*domain.Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, member_id, category, detail, confidence, source, COALESCE(extracted_from, ''), created_at, updated_at
		 FROM preferences WHERE member_id = ?
		 ORDER BY confidence DESC, id ASC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var prefs []*domain.Preference
	for rows.Next() {
		var p domain.Preference
		var category string
		var createdAt, updatedAt int64
		if err := rows.Scan(&p.ID, &p.MemberID, &category, &p.Detail, &p.Confidence,
			&p.Source, &p.ExtractedFrom, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan preference row: %w", err)
		}
		p.Category = domain.PreferenceCategory(category)
		p.CreatedAt = time.Unix(createdAt, 0)
		p.UpdatedAt = time.Unix(updatedAt, 0)
		prefs = append(prefs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preference rows: %w", err)
	}
	return prefs, nil
}

// UpdatePreferenceConfidence raises a stored preference's confidence.
func (s *SQLiteStore) UpdatePreferenceConfidence(ctx context.Context, prefID int64, confidence float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE preferences SET confidence = ?, updated_at = ? WHERE id = ?`,
		confidence, time.Now().Unix(), prefID,
	)
	if err != nil {
		return fmt.Errorf("update preference confidence: %w", err)
	}
	return nil
}

// CreateSession persists a new session, rejecting it when another
// non-terminal session exists. The guard and insert share one transaction so
// two concurrent triggers can never both succeed.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE state NOT IN (?, ?)`,
		string(domain.StateIdle), string(domain.StateCompleted),
	)
	var active int
	if err := row.Scan(&active); err != nil {
		return fmt.Errorf("count active sessions: %w", err)
	}
	if active > 0 {
		return ErrSessionActive
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, state, triggered_by, plan_start_date, plan_end_date, state_entered_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, string(session.State), nullableString(session.TriggeredBy),
		nullableUnix(session.PlanStartDate), nullableUnix(session.PlanEndDate),
		session.StateEnteredAt.Unix(), session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session tx: %w", err)
	}
	return nil
}

// SaveSession persists a session's phase and timestamps.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, state, triggered_by, plan_start_date, plan_end_date, state_entered_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			plan_start_date = excluded.plan_start_date,
			plan_end_date = excluded.plan_end_date,
			state_entered_at = excluded.state_entered_at,
			updated_at = excluded.updated_at`,
		session.ID, string(session.State), nullableString(session.TriggeredBy),
		nullableUnix(session.PlanStartDate), nullableUnix(session.PlanEndDate),
		session.StateEnteredAt.Unix(), session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetActiveSession retrieves the current non-terminal session, or nil.
func (s *SQLiteStore) GetActiveSession(ctx context.Context) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, state, COALESCE(triggered_by, ''), plan_start_date, plan_end_date, state_entered_at, created_at, updated_at
		 FROM sessions WHERE state NOT IN (?, ?)
		 ORDER BY created_at DESC LIMIT 1`,
		string(domain.StateIdle), string(domain.StateCompleted),
	)

	var sess domain.Session
	var state string
	var planStart, planEnd sql.NullInt64
	var stateEnteredAt, createdAt, updatedAt int64

	err := row.Scan(&sess.ID, &state, &sess.TriggeredBy, &planStart, &planEnd,
		&stateEnteredAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.State = domain.SessionState(state)
	if planStart.Valid {
		sess.PlanStartDate = time.Unix(planStart.Int64, 0)
	}
	if planEnd.Valid {
		sess.PlanEndDate = time.Unix(planEnd.Int64, 0)
	}
	sess.StateEnteredAt = time.Unix(stateEnteredAt, 0)
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	sess.ResetTransient()
	return &sess, nil
}

// SaveRecipe persists a recipe together with its ingredients.
func (s *SQLiteStore) SaveRecipe(ctx context.Context, recipe *domain.Recipe) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recipe tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tags, err := json.Marshal(recipe.Tags)
	if err != nil {
		return fmt.Errorf("marshal recipe tags: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recipes (id, session_id, name, description, planned_date, servings,
			prep_time_minutes, cook_time_minutes, cuisine, tags, instructions, approved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			planned_date = excluded.planned_date,
			servings = excluded.servings,
			prep_time_minutes = excluded.prep_time_minutes,
			cook_time_minutes = excluded.cook_time_minutes,
			cuisine = excluded.cuisine,
			tags = excluded.tags,
			instructions = excluded.instructions,
			approved = excluded.approved`,
		recipe.ID, recipe.SessionID, recipe.Name, recipe.Description,
		recipe.PlannedDate.Unix(), recipe.Servings, recipe.PrepTimeMinutes,
		recipe.CookTimeMinutes, recipe.Cuisine, string(tags), recipe.Instructions,
		recipe.Approved,
	); err != nil {
		return fmt.Errorf("insert recipe: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recipe_ingredients WHERE recipe_id = ?`, recipe.ID); err != nil {
		return fmt.Errorf("clear recipe ingredients: %w", err)
	}

	for i := range recipe.Ingredients {
		ing := &recipe.Ingredients[i]
		res, err := tx.ExecContext(ctx,
			`INSERT INTO recipe_ingredients (recipe_id, name, quantity, unit, category, optional,
				already_available, product_id, product_name, added_to_cart, search_status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			recipe.ID, ing.Name, ing.Quantity, ing.Unit, ing.Category, ing.Optional,
			ing.AlreadyAvailable, nullableString(ing.ProductID), nullableString(ing.ProductName),
			ing.AddedToCart, string(ing.SearchStatus),
		)
		if err != nil {
			return fmt.Errorf("insert ingredient %q: %w", ing.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("ingredient last insert id: %w", err)
		}
		ing.ID = id
		ing.RecipeID = recipe.ID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recipe tx: %w", err)
	}
	return nil
}

// GetRecipes retrieves a session's recipes ordered by planned date.
func (s *SQLiteStore) GetRecipes(ctx context.Context, sessionID string) ([]domain.Recipe, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, name, COALESCE(description, ''), planned_date, servings,
			COALESCE(prep_time_minutes, 0), COALESCE(cook_time_minutes, 0),
			COALESCE(cuisine, ''), COALESCE(tags, '[]'), COALESCE(instructions, ''), approved
		 FROM recipes WHERE session_id = ? ORDER BY planned_date`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query recipes: %w", err)
	}
	defer rows.Close()

	var recipes []domain.Recipe
	for rows.Next() {
		var r domain.Recipe
		var plannedDate int64
		var tags string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Name, &r.Description, &plannedDate,
			&r.Servings, &r.PrepTimeMinutes, &r.CookTimeMinutes, &r.Cuisine, &tags,
			&r.Instructions, &r.Approved); err != nil {
			return nil, fmt.Errorf("scan recipe row: %w", err)
		}
		r.PlannedDate = time.Unix(plannedDate, 0)
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal recipe tags: %w", err)
		}
		recipes = append(recipes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipe rows: %w", err)
	}

	for i := range recipes {
		ingredients, err := s.getIngredients(ctx, recipes[i].ID)
		if err != nil {
			return nil, err
		}
		recipes[i].Ingredients = ingredients
	}
	return recipes, nil
}

func (s *SQLiteStore) getIngredients(ctx context.Context, recipeID string) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipe_id, name, COALESCE(quantity, 0), COALESCE(unit, ''), category, optional,
			already_available, COALESCE(product_id, ''), COALESCE(product_name, ''),
			added_to_cart, search_status
		 FROM recipe_ingredients WHERE recipe_id = ? ORDER BY id`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("query ingredients: %w", err)
	}
	defer rows.Close()

	var ingredients []domain.Ingredient
	for rows.Next() {
		var ing domain.Ingredient
		var status string
		if err := rows.Scan(&ing.ID, &ing.RecipeID, &ing.Name, &ing.Quantity, &ing.Unit,
			&ing.Category, &ing.Optional, &ing.AlreadyAvailable, &ing.ProductID,
			&ing.ProductName, &ing.AddedToCart, &status); err != nil {
			return nil, fmt.Errorf("scan ingredient row: %w", err)
		}
		ing.SearchStatus = domain.SearchStatus(status)
		ingredients = append(ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingredient rows: %w", err)
	}
	return ingredients, nil
}

// DeleteRecipes removes a session's recipes and their ingredients.
func (s *SQLiteStore) DeleteRecipes(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recipe_ingredients WHERE recipe_id IN (SELECT id FROM recipes WHERE session_id = ?)`,
		sessionID); err != nil {
		return fmt.Errorf("delete ingredients: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recipes WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete recipes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// MarkRecipesApproved flags all of a session's recipes as approved.
func (s *SQLiteStore) MarkRecipesApproved(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recipes SET approved = 1 WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("mark recipes approved: %w", err)
	}
	return nil
}

// UpdateIngredient persists matching and availability state for one ingredient.
func (s *SQLiteStore) UpdateIngredient(ctx context.Context, ing *domain.Ingredient) error {
	if ing.ID == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE recipe_ingredients SET
			already_available = ?, product_id = ?, product_name = ?,
			added_to_cart = ?, search_status = ?
		 WHERE id = ?`,
		ing.AlreadyAvailable, nullableString(ing.ProductID), nullableString(ing.ProductName),
		ing.AddedToCart, string(ing.SearchStatus), ing.ID,
	)
	if err != nil {
		return fmt.Errorf("update ingredient: %w", err)
	}
	return nil
}

// LogConversation appends one entry to the conversation log.
func (s *SQLiteStore) LogConversation(ctx context.Context, entry *domain.ConversationEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_log (session_id, member_id, direction, message_text, rowid_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullableString(entry.SessionID), nullableString(entry.MemberID),
		string(entry.Direction), entry.MessageText, entry.RowID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("log conversation: %w", err)
	}
	return nil
}

// GetConversationHistory retrieves up to limit entries in chronological order.
func (s *SQLiteStore) GetConversationHistory(ctx context.Context, sessionID string, limit int) ([]*domain.ConversationEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(session_id, ''), COALESCE(member_id, ''), direction, message_text,
			COALESCE(rowid_ref, 0), created_at
		 FROM conversation_log WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversation history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ConversationEntry
	for rows.Next() {
		var e domain.ConversationEntry
		var direction string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.MemberID, &direction,
			&e.MessageText, &e.RowID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		e.Direction = domain.Direction(direction)
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}

	// Rows came newest-first; flip to chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// AddMealHistory records one cooked dinner for variety tracking.
func (s *SQLiteStore) AddMealHistory(ctx context.Context, entry *domain.MealHistoryEntry) error {
	tags, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("marshal history tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meal_history (recipe_name, cuisine, main_protein, tags, cooked_date, rating, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RecipeName, nullableString(entry.Cuisine), nullableString(entry.MainProtein),
		string(tags), entry.CookedDate.Unix(), entry.Rating, nullableString(entry.SessionID),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert meal history: %w", err)
	}
	return nil
}

// GetRecentMealHistory retrieves history entries within the window.
func (s *SQLiteStore) GetRecentMealHistory(ctx context.Context, window time.Duration) ([]*domain.MealHistoryEntry, error) {
	threshold := time.Now().Add(-window).Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipe_name, COALESCE(cuisine, ''), COALESCE(main_protein, ''),
			COALESCE(tags, '[]'), cooked_date, COALESCE(rating, 0), COALESCE(session_id, '')
		 FROM meal_history WHERE cooked_date >= ?
		 ORDER BY cooked_date DESC`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query meal history: %w", err)
	}
	defer rows.Close()

	var entries []*domain.MealHistoryEntry
	for rows.Next() {
		var e domain.MealHistoryEntry
		var tags string
		var cookedDate int64
		if err := rows.Scan(&e.ID, &e.RecipeName, &e.Cuisine, &e.MainProtein,
			&tags, &cookedDate, &e.Rating, &e.SessionID); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.CookedDate = time.Unix(cookedDate, 0)
		if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal history tags: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableUnix(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
