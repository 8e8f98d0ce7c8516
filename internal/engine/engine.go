// Package engine decides what to show next. Each step is an independent unit
// of work: the interaction state arrives inside the pressed button's token,
// gets reconciled against the user's durable progress record, and leaves as
// a presentation whose buttons carry the follow-up tokens. No session object
// lives between steps.
package engine

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/example/anatilbot/internal/content"
	"github.com/example/anatilbot/internal/token"
	"github.com/example/anatilbot/pkg/models"
)

// optionCount is the number of choices shown for a multiple-choice item.
const optionCount = 4

// Store is the progress persistence the engine depends on.
type Store interface {
	Get(userID int64) (*models.ProgressRecord, error)
	Mutate(userID int64, fn func(*models.ProgressRecord)) (*models.ProgressRecord, error)
}

// ActionKind distinguishes the two ways a user event reaches the engine.
type ActionKind int

const (
	// ActionStart begins exercises in a named category.
	ActionStart ActionKind = iota
	// ActionToken resumes whatever state a pressed button carries.
	ActionToken
)

// Action describes one user-initiated event.
type Action struct {
	UserID   int64
	Kind     ActionKind
	Category string
	Token    string
}

// Option is one selectable continuation offered to the user.
type Option struct {
	Label string
	Token string
}

// Presentation is the output of one engine step, rendered by the dispatcher.
type Presentation struct {
	Text     string
	Options  []Option
	Terminal bool
}

// Engine computes the next presentation from an action, the content bank and
// the user's progress record.
type Engine struct {
	bank  *content.Bank
	store Store
	rnd   *rand.Rand
}

// New creates an engine with a time-seeded random source.
func New(bank *content.Bank, store Store) *Engine {
	return NewWithRand(bank, store, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates an engine with an injected random source, so tests can
// make item picks and option shuffles deterministic.
func NewWithRand(bank *content.Bank, store Store, rnd *rand.Rand) *Engine {
	return &Engine{bank: bank, store: store, rnd: rnd}
}

// Step handles one inbound action. A store error means the mutation did not
// durably persist; the caller must surface it instead of reporting success.
// A malformed token is not an error: the user gets the fallback screen.
func (e *Engine) Step(a Action) (Presentation, error) {
	switch a.Kind {
	case ActionStart:
		return e.start(a.UserID, a.Category)
	case ActionToken:
		t, err := token.Decode(a.Token)
		if err != nil {
			log.Printf("Ignoring malformed token from user %d: %v", a.UserID, err)
			return e.CategoryMenu(), nil
		}
		return e.resume(a.UserID, t)
	default:
		return e.CategoryMenu(), nil
	}
}

func (e *Engine) resume(userID int64, t token.Token) (Presentation, error) {
	switch t.Kind {
	case token.KindStart, token.KindNext:
		return e.start(userID, t.Category)
	case token.KindAnswer:
		return e.answer(userID, t)
	case token.KindStop:
		return e.quizSummary(userID)
	case token.KindRead:
		return e.readCursor(userID, t.ItemID)
	case token.KindReadAnswer:
		return e.readAnswer(userID, t)
	}
	return e.CategoryMenu(), nil
}

func (e *Engine) start(userID int64, category string) (Presentation, error) {
	if category == models.CategoryReadings {
		return e.startReading(userID)
	}
	return e.startQuiz(userID, category)
}

// startQuiz serves a fresh unseen item from the category. The item is burned
// at serve time: a crash after the mark never re-serves it, at the cost of
// losing it when the user never answers. Pick and mark run inside one store
// mutation, so concurrent starts from the same user cannot serve one item
// twice.
func (e *Engine) startQuiz(userID int64, category string) (Presentation, error) {
	var item models.Item
	served := false
	if _, err := e.store.Mutate(userID, func(r *models.ProgressRecord) {
		var unseen []models.Item
		for _, it := range e.bank.ItemsIn(category) {
			if !r.HasUsed(category, it.ID) {
				unseen = append(unseen, it)
			}
		}
		if len(unseen) == 0 {
			return
		}
		item = unseen[e.rnd.Intn(len(unseen))]
		r.MarkUsed(category, item.ID)
		served = true
	}); err != nil {
		return Presentation{}, err
	}
	if !served {
		return e.exhausted(category), nil
	}

	options := make([]Option, 0, optionCount)
	for _, choice := range e.choices(category, item) {
		data, err := token.Encode(token.Token{
			Kind:     token.KindAnswer,
			Category: category,
			ItemID:   item.ID,
			Chosen:   choice,
			Expected: item.Answer,
		})
		if err != nil {
			return Presentation{}, fmt.Errorf("failed to encode answer token: %w", err)
		}
		options = append(options, Option{Label: choice, Token: data})
	}

	return Presentation{Text: quizPrompt(category, item), Options: options}, nil
}

func quizPrompt(category string, item models.Item) string {
	if category == models.CategoryWords {
		return fmt.Sprintf("🧠 «%s» сөзінің аудармасы қандай?", item.Prompt)
	}
	return "🧠 " + item.Prompt
}

// choices returns the answer options for an item, shuffled fresh on every
// presentation so the correct position is never predictable.
func (e *Engine) choices(category string, item models.Item) []string {
	var opts []string
	if len(item.Options) > 0 {
		opts = append(opts, item.Options...)
		if !containsString(opts, item.Answer) {
			opts = append(opts, item.Answer)
		}
	} else {
		opts = append(e.distractors(category, item, optionCount-1), item.Answer)
	}
	e.rnd.Shuffle(len(opts), func(i, j int) {
		opts[i], opts[j] = opts[j], opts[i]
	})
	return opts
}

// distractors draws up to n distinct incorrect answers from the category's
// answer pool. The pool may be smaller than n; duplicates are never returned.
func (e *Engine) distractors(category string, item models.Item, n int) []string {
	pool := e.bank.AnswerPool(category)
	seen := map[string]bool{item.Answer: true}
	var out []string
	for _, idx := range e.rnd.Perm(len(pool)) {
		if len(out) == n {
			break
		}
		answer := pool[idx]
		if seen[answer] {
			continue
		}
		seen[answer] = true
		out = append(out, answer)
	}
	return out
}

// answer scores a quiz answer. The token is self-contained, so correctness
// needs no content lookup; the bank is consulted only for the feedback text.
// Replayed answer tokens score again: served items are burned at serve time
// and the store keeps no per-answer history, so quiz scoring is explicitly
// at-least-once.
func (e *Engine) answer(userID int64, t token.Token) (Presentation, error) {
	prompt := t.ItemID
	if item, ok := e.bank.ItemByID(t.Category, t.ItemID); ok {
		prompt = item.Prompt
	}

	var text string
	if t.Chosen == t.Expected {
		if _, err := e.store.Mutate(userID, func(r *models.ProgressRecord) {
			r.AwardCorrect()
		}); err != nil {
			return Presentation{}, err
		}
		text = fmt.Sprintf("✅ Дұрыс! «%s» = %s\n+10 XP 🔥", prompt, t.Expected)
	} else {
		text = fmt.Sprintf("❌ Қате. Дұрыс жауап: %s", t.Expected)
	}

	next, err := token.Encode(token.Token{Kind: token.KindNext, Category: t.Category})
	if err != nil {
		return Presentation{}, err
	}
	stop, err := token.Encode(token.Token{Kind: token.KindStop, Category: t.Category})
	if err != nil {
		return Presentation{}, err
	}

	return Presentation{
		Text: text,
		Options: []Option{
			{Label: "▶️ Жалғастыру", Token: next},
			{Label: "⏹️ Тоқтату", Token: stop},
		},
	}, nil
}

// quizSummary ends a quiz run with the progress summary.
func (e *Engine) quizSummary(userID int64) (Presentation, error) {
	rec, err := e.store.Get(userID)
	if err != nil {
		return Presentation{}, err
	}
	return Presentation{
		Text:     "🏁 Викторина аяқталды!\n\n" + Summary(rec),
		Terminal: true,
	}, nil
}

// startReading serves a fresh unseen passage, marked used at serve time like
// quiz items, and presents its first question together with the text. As in
// startQuiz, pick and mark share one store mutation.
func (e *Engine) startReading(userID int64) (Presentation, error) {
	var passage models.Passage
	served := false
	if _, err := e.store.Mutate(userID, func(r *models.ProgressRecord) {
		var unseen []models.Passage
		for _, p := range e.bank.Passages() {
			if !r.HasUsed(models.CategoryReadings, p.ID) {
				unseen = append(unseen, p)
			}
		}
		if len(unseen) == 0 {
			return
		}
		passage = unseen[e.rnd.Intn(len(unseen))]
		r.MarkUsed(models.CategoryReadings, passage.ID)
		served = true
	}); err != nil {
		return Presentation{}, err
	}
	if !served {
		return e.exhausted(models.CategoryReadings), nil
	}

	header := fmt.Sprintf("📖 %s\n\n%s\n\n", passage.Title, passage.Text)
	return e.presentQuestion(passage, 0, header)
}

// readCursor re-enters a passage at the user's persisted cursor.
func (e *Engine) readCursor(userID int64, passageID string) (Presentation, error) {
	passage, ok := e.bank.PassageByID(passageID)
	if !ok {
		// Content changed between render and click
		return e.contentGone(), nil
	}

	rec, err := e.store.Get(userID)
	if err != nil {
		return Presentation{}, err
	}

	k := rec.ReadingCursor[passage.ID]
	if k >= len(passage.Questions) {
		return e.passageDone(passage, rec), nil
	}
	return e.presentQuestion(passage, k, "")
}

// readAnswer scores an answer to one passage question. Only the question at
// the persisted cursor counts; a stale token from an earlier render is a
// no-op that re-presents the current question.
func (e *Engine) readAnswer(userID int64, t token.Token) (Presentation, error) {
	passage, ok := e.bank.PassageByID(t.ItemID)
	if !ok {
		return e.contentGone(), nil
	}

	rec, err := e.store.Get(userID)
	if err != nil {
		return Presentation{}, err
	}

	k := rec.ReadingCursor[passage.ID]
	if k >= len(passage.Questions) {
		return e.passageDone(passage, rec), nil
	}
	if t.SubIndex != k {
		return e.presentQuestion(passage, k, "")
	}

	if t.Chosen != t.Expected {
		// No mutation on a wrong answer; the question is asked again
		retry, err := token.Encode(token.Token{Kind: token.KindRead, Category: models.CategoryReadings, ItemID: passage.ID})
		if err != nil {
			return Presentation{}, err
		}
		return Presentation{
			Text:    fmt.Sprintf("❌ Қате. Дұрыс жауап: %s", t.Expected),
			Options: []Option{{Label: "🔁 Қайталау", Token: retry}},
		}, nil
	}

	rec, err = e.store.Mutate(userID, func(r *models.ProgressRecord) {
		r.AwardCorrect()
		r.ReadingCursor[passage.ID] = k + 1
	})
	if err != nil {
		return Presentation{}, err
	}

	if k+1 < len(passage.Questions) {
		next, err := token.Encode(token.Token{Kind: token.KindRead, Category: models.CategoryReadings, ItemID: passage.ID})
		if err != nil {
			return Presentation{}, err
		}
		return Presentation{
			Text:    "✅ Дұрыс! +10 XP 🔥",
			Options: []Option{{Label: "➡️ Келесі сұрақ", Token: next}},
		}, nil
	}

	return Presentation{
		Text:     fmt.Sprintf("✅ Дұрыс! +10 XP 🔥\n\n🎉 «%s» мәтіні аяқталды!\n\n%s", passage.Title, Summary(rec)),
		Terminal: true,
	}, nil
}

// presentQuestion renders question k of a passage with shuffled options.
func (e *Engine) presentQuestion(passage models.Passage, k int, header string) (Presentation, error) {
	question := passage.Questions[k]

	opts := append([]string(nil), question.Options...)
	if !containsString(opts, question.Answer) {
		opts = append(opts, question.Answer)
	}
	e.rnd.Shuffle(len(opts), func(i, j int) {
		opts[i], opts[j] = opts[j], opts[i]
	})

	options := make([]Option, 0, len(opts))
	for _, choice := range opts {
		data, err := token.Encode(token.Token{
			Kind:     token.KindReadAnswer,
			Category: models.CategoryReadings,
			ItemID:   passage.ID,
			SubIndex: k,
			Chosen:   choice,
			Expected: question.Answer,
		})
		if err != nil {
			return Presentation{}, fmt.Errorf("failed to encode answer token: %w", err)
		}
		options = append(options, Option{Label: choice, Token: data})
	}

	text := header + fmt.Sprintf("❓ %d/%d. %s", k+1, len(passage.Questions), question.Prompt)
	return Presentation{Text: text, Options: options}, nil
}

func (e *Engine) passageDone(passage models.Passage, rec *models.ProgressRecord) Presentation {
	return Presentation{
		Text:     fmt.Sprintf("🎉 «%s» мәтіні аяқталды!\n\n%s", passage.Title, Summary(rec)),
		Terminal: true,
	}
}

// exhausted is the terminal screen for a category with no unseen items left.
// An empty or unknown category lands here too: nothing to serve is a normal
// condition, not a fault.
func (e *Engine) exhausted(category string) Presentation {
	return Presentation{
		Text:     fmt.Sprintf("🎓 «%s» бөліміндегі барлық тапсырмалар аяқталды!\nЖаңа мазмұн жақын арада қосылады.", categoryTitle(category)),
		Terminal: true,
	}
}

// contentGone is the terminal screen for a button whose content no longer
// resolves.
func (e *Engine) contentGone() Presentation {
	return Presentation{
		Text:     "⚠️ Бұл тапсырма енді қолжетімді емес. Жаңа жаттығуды бастаңыз!",
		Terminal: true,
	}
}

// CategoryMenu presents the exercise category picker. It doubles as the safe
// fallback after a malformed token: no progress is touched on the way here.
func (e *Engine) CategoryMenu() Presentation {
	categories := []string{models.CategoryWords, models.CategoryGrammar, models.CategoryReadings}
	options := make([]Option, 0, len(categories))
	for _, category := range categories {
		data, err := token.Encode(token.Token{Kind: token.KindStart, Category: category})
		if err != nil {
			log.Printf("Failed to encode start token for %q: %v", category, err)
			continue
		}
		options = append(options, Option{Label: categoryTitle(category), Token: data})
	}
	return Presentation{Text: "🧠 Бөлімді таңдаңыз:", Options: options}
}

func categoryTitle(category string) string {
	switch category {
	case models.CategoryWords:
		return "📘 Сөздер"
	case models.CategoryGrammar:
		return "📐 Грамматика"
	case models.CategoryReadings:
		return "📖 Оқу"
	}
	return category
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
