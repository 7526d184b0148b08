// Package orchestrator coordinates the meal planning workflow through a
// persisted state machine driven by inbound messages and timeouts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/nibbl/internal/config"
	"github.com/ashureev/nibbl/internal/conversation"
	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/planner"
	"github.com/ashureev/nibbl/internal/store"
)

// historyWindow bounds how far back cooked meals are fed into the planner
// for variety.
const historyWindow = 28 * 24 * time.Hour

// Messenger sends an outbound message to one recipient.
type Messenger interface {
	Send(ctx context.Context, recipient, text string) error
}

// Planner generates, revises and classifies on behalf of the state machine.
type Planner interface {
	GeneratePlan(ctx context.Context, req planner.PlanRequest) (*domain.MealPlan, error)
	RevisePlan(ctx context.Context, recipes []domain.Recipe, feedback string) (*domain.MealPlan, error)
	Classify(ctx context.Context, text string, state domain.SessionState, role domain.Role) (planner.Classification, error)
	MatchPantry(ctx context.Context, message string, ingredients []domain.Ingredient) ([]string, error)
}

// PreferenceObserver extracts and accumulates preferences from messages.
type PreferenceObserver interface {
	Observe(ctx context.Context, member *domain.Member, text string) ([]*domain.Preference, []string)
	Snapshot(ctx context.Context, members []*domain.Member) string
}

// CartFiller pushes a merged ingredient list into the grocery cart.
type CartFiller interface {
	Fill(ctx context.Context, ingredients []domain.Ingredient) *domain.CartReport
}

// Exporter writes an approved plan to disk.
type Exporter interface {
	ExportSession(recipes []domain.Recipe, session *domain.Session) error
}

// Deps carries everything the orchestrator coordinates. Cart, Exporter and
// Events may be nil.
type Deps struct {
	Config       *config.Config
	Repo         store.Repository
	Messenger    Messenger
	Planner      Planner
	Preferences  PreferenceObserver
	Conversation *conversation.Manager
	Cart         CartFiller
	Exporter     Exporter
	Events       EventSink
}

// Orchestrator is the single writer of session state. All entry points
// serialize on one mutex so the poll loop, the scheduler and the admin API
// never interleave transitions.
type Orchestrator struct {
	cfg    *config.Config
	repo   store.Repository
	msgr   Messenger
	plan   Planner
	prefs  PreferenceObserver
	conv   *conversation.Manager
	cart   CartFiller
	export Exporter
	events EventSink
	lang   string

	mu      sync.Mutex
	session *domain.Session
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:    deps.Config,
		repo:   deps.Repo,
		msgr:   deps.Messenger,
		plan:   deps.Planner,
		prefs:  deps.Preferences,
		conv:   deps.Conversation,
		cart:   deps.Cart,
		export: deps.Exporter,
		events: deps.Events,
		lang:   deps.Config.Language,
	}
}

// LoadActiveSession resumes a non-terminal session after a restart. The
// phase timestamp is preserved so timeouts keep counting from the original
// entry time.
func (o *Orchestrator) LoadActiveSession(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	session, err := o.repo.GetActiveSession(ctx)
	if err != nil {
		return fmt.Errorf("load active session: %w", err)
	}
	o.session = session
	if session != nil {
		slog.Info("resumed active session", "session", session.ID, "state", session.State)
	}
	return nil
}

// Session returns a copy of the current session, or nil when idle.
func (o *Orchestrator) Session() *domain.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	copied := *o.session
	return &copied
}

// HandleMessage processes one inbound message. Preference observation always
// runs, session or not. During a session the cancellation vocabulary is
// checked before any intent classification.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg domain.InboundMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	member := o.conv.ResolveSender(ctx, msg)
	if member == nil {
		slog.Info("ignoring message from unknown sender", "sender", msg.SenderID)
		return
	}

	sessionID := ""
	state := domain.StateIdle
	if o.session != nil {
		sessionID = o.session.ID
		state = o.session.State
	}
	slog.Info("inbound message",
		"member", member.Name, "text", truncate(msg.Text, 60), "state", state)

	o.conv.LogIncoming(ctx, msg, member, sessionID)

	// Passive learning happens for every message regardless of session state.
	_, wishes := o.prefs.Observe(ctx, member, msg.Text)

	if o.session == nil {
		o.handleIdle(ctx, member, msg)
		return
	}

	if conversation.IsCancel(msg.Text) {
		o.cancelSession(ctx, member)
		return
	}

	intent := o.classify(ctx, msg.Text, o.session.State, member.Role).Intent

	if intent == planner.IntentCancel {
		o.cancelSession(ctx, member)
		return
	}

	switch o.session.State {
	case domain.StateCollectingPreferences:
		o.handlePreference(ctx, member, intent, wishes)
	case domain.StateAwaitingApproval:
		if member.IsParent() {
			o.handleApproval(ctx, member, msg.Text, intent)
		}
	case domain.StateCheckingPantry:
		if member.IsParent() {
			o.handlePantry(ctx, member, msg.Text)
		}
	default:
		// Non-interactive phase. A fresh trigger must never spawn a second
		// session; tell the sender one is already running.
		if conversation.IsTrigger(msg.Text) || intent == planner.IntentTrigger {
			o.sendTo(ctx, member, message("session_active", o.lang))
		}
	}
}

// CheckTimeouts fires the timed transitions: preference collection gives up
// waiting after the configured window, as does the pantry check.
func (o *Orchestrator) CheckTimeouts(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return
	}

	switch o.session.State {
	case domain.StateCollectingPreferences:
		if o.session.InStateLongerThan(o.cfg.PreferenceTimeout) {
			slog.Info("preference collection timed out", "session", o.session.ID)
			o.enterGeneratingPlan(ctx)
		}
	case domain.StateCheckingPantry:
		if o.session.InStateLongerThan(o.cfg.PantryTimeout) {
			slog.Info("pantry check timed out, filling cart with all items", "session", o.session.ID)
			o.enterFillingCart(ctx)
		}
	}
}

// StartSession begins a new planning round. triggeredBy is nil for scheduled
// or API triggers. A concurrent active session is rejected, never merged.
func (o *Orchestrator) StartSession(ctx context.Context, triggeredBy *domain.Member) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startSession(ctx, triggeredBy)
}

func (o *Orchestrator) startSession(ctx context.Context, triggeredBy *domain.Member) error {
	if o.session != nil && o.session.State.Active() {
		slog.Warn("session already active, rejecting trigger")
		if triggeredBy != nil {
			o.sendTo(ctx, triggeredBy, message("session_active", o.lang))
		}
		return store.ErrSessionActive
	}

	memberID := ""
	if triggeredBy != nil {
		memberID = triggeredBy.ID
	}
	session := domain.NewSession(memberID)

	if err := o.repo.CreateSession(ctx, session); err != nil {
		if errors.Is(err, store.ErrSessionActive) {
			slog.Warn("session already active in store, rejecting trigger")
			if triggeredBy != nil {
				o.sendTo(ctx, triggeredBy, message("session_active", o.lang))
			}
			return err
		}
		return fmt.Errorf("create session: %w", err)
	}

	o.session = session
	slog.Info("started session", "session", session.ID, "triggered_by", memberID)
	o.enterCollectingPreferences(ctx)
	return nil
}

// handleIdle watches for a session trigger. Any household member may start
// a round; approval and pantry answers stay parent-only.
func (o *Orchestrator) handleIdle(ctx context.Context, member *domain.Member, msg domain.InboundMessage) {
	if conversation.IsTrigger(msg.Text) {
		slog.Info("trigger phrase detected", "member", member.Name)
		_ = o.startSession(ctx, member)
		return
	}

	if o.classify(ctx, msg.Text, domain.StateIdle, member.Role).Intent == planner.IntentTrigger {
		_ = o.startSession(ctx, member)
	}
}

// classify runs intent classification with a single retry. After the retry a
// failure degrades to IntentOther so the message is handled as phase content.
func (o *Orchestrator) classify(ctx context.Context, text string, state domain.SessionState, role domain.Role) planner.Classification {
	c, err := o.plan.Classify(ctx, text, state, role)
	if err != nil {
		slog.Warn("classification failed, retrying once", "error", err)
		c, err = o.plan.Classify(ctx, text, state, role)
	}
	if err != nil {
		slog.Warn("classification failed, treating as phase content", "error", err)
		return planner.Classification{Intent: planner.IntentOther}
	}
	return c
}

// --- state transitions ---

// transition persists the new phase before any side effect runs in it.
func (o *Orchestrator) transition(ctx context.Context, state domain.SessionState) bool {
	o.session.TransitionTo(state)
	if err := o.repo.SaveSession(ctx, o.session); err != nil {
		slog.Error("could not persist session state", "session", o.session.ID, "state", state, "error", err)
		return false
	}
	o.publish("transition", string(state))
	return true
}

func (o *Orchestrator) enterCollectingPreferences(ctx context.Context) {
	if !o.transition(ctx, domain.StateCollectingPreferences) {
		return
	}
	o.session.ResetTransient()

	members, err := o.repo.GetMembers(ctx)
	if err != nil {
		slog.Error("could not load members", "error", err)
		return
	}

	text := message("ask_preferences", o.lang)
	for _, m := range members {
		o.sendTo(ctx, m, text)
	}
}

func (o *Orchestrator) enterGeneratingPlan(ctx context.Context) {
	if !o.transition(ctx, domain.StateGeneratingPlan) {
		return
	}

	members, err := o.repo.GetMembers(ctx)
	if err != nil {
		slog.Error("could not load members", "error", err)
		return
	}
	history, err := o.repo.GetRecentMealHistory(ctx, historyWindow)
	if err != nil {
		slog.Warn("could not load meal history", "error", err)
	}

	req := planner.PlanRequest{
		Members:     members,
		Preferences: o.prefs.Snapshot(ctx, members),
		Wishes:      o.session.Wishes,
		History:     history,
		Days:        o.cfg.PlanDays,
		Language:    o.lang,
	}

	plan, err := o.plan.GeneratePlan(ctx, req)
	if err != nil {
		slog.Warn("plan generation failed, retrying once", "error", err)
		plan, err = o.plan.GeneratePlan(ctx, req)
	}
	if err != nil {
		slog.Error("plan generation failed", "session", o.session.ID, "error", err)
		if parent := o.conv.FirstParent(ctx); parent != nil {
			o.sendTo(ctx, parent, message("plan_failed", o.lang))
		}
		return
	}

	for i := range plan.Recipes {
		plan.Recipes[i].SessionID = o.session.ID
		if err := o.repo.SaveRecipe(ctx, &plan.Recipes[i]); err != nil {
			slog.Error("could not save recipe", "recipe", plan.Recipes[i].Name, "error", err)
		}
	}

	if len(plan.Recipes) > 0 {
		o.session.PlanStartDate = plan.Recipes[0].PlannedDate
		o.session.PlanEndDate = plan.Recipes[len(plan.Recipes)-1].PlannedDate
	}

	o.enterAwaitingApproval(ctx, plan.Recipes)
}

// enterAwaitingApproval presents the plan to the first parent. recipes may be
// nil, in which case the persisted plan is re-shown.
func (o *Orchestrator) enterAwaitingApproval(ctx context.Context, recipes []domain.Recipe) {
	if !o.transition(ctx, domain.StateAwaitingApproval) {
		return
	}

	if recipes == nil {
		var err error
		recipes, err = o.repo.GetRecipes(ctx, o.session.ID)
		if err != nil {
			slog.Error("could not load recipes", "session", o.session.ID, "error", err)
			return
		}
	}

	parent := o.conv.FirstParent(ctx)
	if parent == nil {
		slog.Error("no parent configured, cannot request approval")
		return
	}
	o.sendTo(ctx, parent, planner.FormatMealPlan(recipes, o.lang))
	o.sendTo(ctx, parent, message("ask_approval", o.lang))
}

func (o *Orchestrator) enterCompilingIngredients(ctx context.Context) {
	if !o.transition(ctx, domain.StateCompilingIngredients) {
		return
	}

	if err := o.repo.MarkRecipesApproved(ctx, o.session.ID); err != nil {
		slog.Error("could not mark recipes approved", "session", o.session.ID, "error", err)
	}

	if o.export != nil {
		recipes, err := o.repo.GetRecipes(ctx, o.session.ID)
		if err == nil {
			if err := o.export.ExportSession(recipes, o.session); err != nil {
				slog.Error("markdown export failed", "session", o.session.ID, "error", err)
			}
		}
	}

	o.enterCheckingPantry(ctx)
}

func (o *Orchestrator) enterCheckingPantry(ctx context.Context) {
	if !o.transition(ctx, domain.StateCheckingPantry) {
		return
	}

	recipes, err := o.repo.GetRecipes(ctx, o.session.ID)
	if err != nil {
		slog.Error("could not load recipes", "session", o.session.ID, "error", err)
		return
	}

	pantryMsg := planner.FormatPantryCheck(domain.AllIngredients(recipes), o.lang)
	if pantryMsg == "" {
		// Nothing worth asking about, go straight to the cart.
		o.enterFillingCart(ctx)
		return
	}

	parent := o.conv.FirstParent(ctx)
	if parent == nil {
		o.enterFillingCart(ctx)
		return
	}
	o.sendTo(ctx, parent, planner.FormatIngredientList(recipes, o.lang))
	o.sendTo(ctx, parent, pantryMsg)
}

// enterFillingCart always reaches COMPLETED; per-item failures end up in the
// report manifest rather than aborting the run.
func (o *Orchestrator) enterFillingCart(ctx context.Context) {
	if !o.transition(ctx, domain.StateFillingCart) {
		return
	}

	parent := o.conv.FirstParent(ctx)

	if o.cart == nil {
		slog.Warn("no cart filler configured, skipping cart fill", "session", o.session.ID)
		if parent != nil {
			o.sendTo(ctx, parent, message("picnic_error", o.lang, "geen verbinding"))
		}
		o.enterCompleted(ctx)
		return
	}

	if parent != nil {
		o.sendTo(ctx, parent, message("filling_cart", o.lang))
	}

	recipes, err := o.repo.GetRecipes(ctx, o.session.ID)
	if err != nil {
		slog.Error("could not load recipes", "session", o.session.ID, "error", err)
		o.enterCompleted(ctx)
		return
	}
	ingredients := domain.AllIngredients(recipes)

	report := o.cart.Fill(ctx, ingredients)

	// Copy match results from the merged report back onto the stored rows.
	added := make(map[string]domain.CartItem, len(report.Added))
	for _, item := range report.Added {
		added[strings.ToLower(item.Ingredient.Name)] = item
	}
	for i := range ingredients {
		item, ok := added[strings.ToLower(ingredients[i].Name)]
		if !ok {
			continue
		}
		ingredients[i].ProductID = item.ProductID
		ingredients[i].ProductName = item.ProductName
		ingredients[i].AddedToCart = true
		ingredients[i].SearchStatus = domain.SearchFound
		if err := o.repo.UpdateIngredient(ctx, &ingredients[i]); err != nil {
			slog.Error("could not update ingredient", "ingredient", ingredients[i].Name, "error", err)
		}
	}

	o.publish("cart_report", fmt.Sprintf("added=%d failed=%d", len(report.Added), report.Failed()))
	if parent != nil {
		o.sendTo(ctx, parent, planner.FormatCartReport(report, o.lang))
	}

	o.enterCompleted(ctx)
}

func (o *Orchestrator) enterCompleted(ctx context.Context) {
	if !o.transition(ctx, domain.StateCompleted) {
		return
	}

	recipes, err := o.repo.GetRecipes(ctx, o.session.ID)
	if err != nil {
		slog.Error("could not load recipes for history", "session", o.session.ID, "error", err)
	}
	for _, r := range recipes {
		entry := &domain.MealHistoryEntry{
			RecipeName:  r.Name,
			Cuisine:     r.Cuisine,
			MainProtein: guessProtein(r),
			Tags:        r.Tags,
			CookedDate:  r.PlannedDate,
			SessionID:   o.session.ID,
		}
		if err := o.repo.AddMealHistory(ctx, entry); err != nil {
			slog.Error("could not record meal history", "recipe", r.Name, "error", err)
		}
	}

	slog.Info("session completed", "session", o.session.ID)
	o.session = nil
}

func (o *Orchestrator) cancelSession(ctx context.Context, member *domain.Member) {
	if o.session != nil {
		slog.Info("session cancelled", "session", o.session.ID, "by", member.Name)
		o.transition(ctx, domain.StateCompleted)
		o.session = nil
	}
	o.sendTo(ctx, member, message("cancelled", o.lang))
}

// --- per-phase message handlers ---

func (o *Orchestrator) handlePreference(ctx context.Context, member *domain.Member, intent planner.Intent, wishes []string) {
	o.session.MembersResponded[member.ID] = true
	if len(wishes) > 0 {
		o.session.Wishes[member.ID] = append(o.session.Wishes[member.ID], wishes...)
	}

	o.sendTo(ctx, member, message("thanks_preference", o.lang, member.Name))

	// A parent saying "go ahead" cuts collection short.
	if intent == planner.IntentTrigger && member.IsParent() {
		o.enterGeneratingPlan(ctx)
		return
	}

	members, err := o.repo.GetMembers(ctx)
	if err != nil {
		slog.Error("could not load members", "error", err)
		return
	}
	for _, m := range members {
		if !o.session.MembersResponded[m.ID] {
			return
		}
	}

	o.sendTo(ctx, member, message("all_responded", o.lang))
	o.enterGeneratingPlan(ctx)
}

func (o *Orchestrator) handleApproval(ctx context.Context, member *domain.Member, text string, intent planner.Intent) {
	switch intent {
	case planner.IntentApproval:
		o.sendTo(ctx, member, message("plan_approved", o.lang))
		o.enterCompilingIngredients(ctx)

	case planner.IntentRejection:
		o.sendTo(ctx, member, message("full_rejection", o.lang))
		if err := o.repo.DeleteRecipes(ctx, o.session.ID); err != nil {
			slog.Error("could not delete recipes", "session", o.session.ID, "error", err)
		}
		o.enterGeneratingPlan(ctx)

	case planner.IntentChangeRequest:
		o.sendTo(ctx, member, message("adjusting_plan", o.lang))
		o.revisePlan(ctx, member, text)
	}
}

// revisePlan keeps the old recipes until a revision succeeds, so a failed
// revision never leaves the session without a plan.
func (o *Orchestrator) revisePlan(ctx context.Context, member *domain.Member, feedback string) {
	recipes, err := o.repo.GetRecipes(ctx, o.session.ID)
	if err != nil {
		slog.Error("could not load recipes", "session", o.session.ID, "error", err)
		o.sendTo(ctx, member, message("revision_failed", o.lang))
		return
	}

	revised, err := o.plan.RevisePlan(ctx, recipes, feedback)
	if err != nil {
		slog.Warn("plan revision failed, retrying once", "error", err)
		revised, err = o.plan.RevisePlan(ctx, recipes, feedback)
	}
	if err != nil {
		slog.Error("plan revision failed", "session", o.session.ID, "error", err)
		o.sendTo(ctx, member, message("revision_failed", o.lang))
		return
	}

	if len(revised.Recipes) == 0 {
		// Empty revision, re-show the existing plan.
		o.enterAwaitingApproval(ctx, nil)
		return
	}

	if err := o.repo.DeleteRecipes(ctx, o.session.ID); err != nil {
		slog.Error("could not delete recipes", "session", o.session.ID, "error", err)
	}
	for i := range revised.Recipes {
		revised.Recipes[i].SessionID = o.session.ID
		if err := o.repo.SaveRecipe(ctx, &revised.Recipes[i]); err != nil {
			slog.Error("could not save recipe", "recipe", revised.Recipes[i].Name, "error", err)
		}
	}
	o.enterAwaitingApproval(ctx, revised.Recipes)
}

func (o *Orchestrator) handlePantry(ctx context.Context, member *domain.Member, text string) {
	recipes, err := o.repo.GetRecipes(ctx, o.session.ID)
	if err != nil {
		slog.Error("could not load recipes", "session", o.session.ID, "error", err)
		return
	}
	ingredients := domain.AllIngredients(recipes)

	matched, err := o.plan.MatchPantry(ctx, text, ingredients)
	if err != nil {
		slog.Warn("pantry match failed, retrying once", "error", err)
		matched, err = o.plan.MatchPantry(ctx, text, ingredients)
	}
	if err != nil {
		slog.Error("pantry match failed, adding everything", "error", err)
	}

	matchedLower := make(map[string]bool, len(matched))
	for _, name := range matched {
		matchedLower[strings.ToLower(name)] = true
	}

	marked := 0
	for i := range ingredients {
		if !matchedLower[strings.ToLower(ingredients[i].Name)] {
			continue
		}
		ingredients[i].AlreadyAvailable = true
		if err := o.repo.UpdateIngredient(ctx, &ingredients[i]); err != nil {
			slog.Error("could not update ingredient", "ingredient", ingredients[i].Name, "error", err)
			continue
		}
		marked++
	}

	if marked > 0 {
		o.sendTo(ctx, member, message("pantry_marked", o.lang, marked))
	} else {
		o.sendTo(ctx, member, message("pantry_none", o.lang))
	}

	o.enterFillingCart(ctx)
}

// --- helpers ---

func (o *Orchestrator) sendTo(ctx context.Context, member *domain.Member, text string) {
	if err := o.msgr.Send(ctx, member.IMessageID, text); err != nil {
		slog.Error("could not send message", "recipient", member.Name, "error", err)
		return
	}
	sessionID := ""
	if o.session != nil {
		sessionID = o.session.ID
	}
	o.conv.LogOutgoing(ctx, member.ID, text, sessionID)
	o.publish("message", member.Name)
}

func (o *Orchestrator) publish(typ, detail string) {
	if o.events == nil {
		return
	}
	ev := Event{Type: typ, Detail: detail, At: time.Now()}
	if o.session != nil {
		ev.SessionID = o.session.ID
		ev.State = o.session.State
	}
	o.events.Publish(ev)
}

var proteins = []string{
	"chicken", "kip", "beef", "rund", "pork", "varken", "fish", "vis",
	"zalm", "salmon", "tofu", "garnalen", "shrimp", "gehakt", "lamb",
	"lam", "tonijn", "tuna",
}

// guessProtein picks the main protein from tags first, then ingredient names.
func guessProtein(recipe domain.Recipe) string {
	for _, tag := range recipe.Tags {
		lower := strings.ToLower(tag)
		for _, p := range proteins {
			if lower == p {
				return p
			}
		}
	}
	for _, ing := range recipe.Ingredients {
		lower := strings.ToLower(ing.Name)
		for _, p := range proteins {
			if strings.Contains(lower, p) {
				return p
			}
		}
	}
	for _, tag := range recipe.Tags {
		lower := strings.ToLower(tag)
		if lower == "vegetarian" || lower == "vegetarisch" {
			return "vegetarisch"
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
