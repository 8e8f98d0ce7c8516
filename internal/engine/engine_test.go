package engine

import (
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/anatilbot/internal/content"
	"github.com/example/anatilbot/internal/progress"
	"github.com/example/anatilbot/internal/token"
	"github.com/example/anatilbot/pkg/models"
)

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// newTestBank builds a bank with five words, two grammar items and one
// two-question passage.
func newTestBank(t *testing.T) *content.Bank {
	t.Helper()
	dir := t.TempDir()

	words := []models.Item{
		{ID: "w-alma", Prompt: "алма", Answer: "яблоко"},
		{ID: "w-nan", Prompt: "нан", Answer: "хлеб"},
		{ID: "w-su", Prompt: "су", Answer: "вода"},
		{ID: "w-kitap", Prompt: "кітап", Answer: "книга"},
		{ID: "w-uy", Prompt: "үй", Answer: "дом"},
	}
	grammar := []models.Item{
		{ID: "g-1", Prompt: "Менің ___ бар.", Answer: "кітабым", Options: []string{"кітабым", "кітабы", "кітабың", "кітап"}},
		{ID: "g-2", Prompt: "Ол мектепке ___.", Answer: "барады", Options: []string{"барады", "барамын", "барасың", "бару"}},
	}
	readings := []models.Passage{
		{
			ID:    "r-abai",
			Title: "Абай туралы",
			Text:  "Абай Құнанбайұлы — қазақтың ұлы ақыны.",
			Questions: []models.Question{
				{Prompt: "Абай кім болған?", Answer: "ақын", Options: []string{"ақын", "суретші", "дәрігер", "мұғалім"}},
				{Prompt: "Абайдың тегі кім?", Answer: "Құнанбайұлы", Options: []string{"Құнанбайұлы", "Абайұлы", "Сейфуллин", "Мақатаев"}},
			},
		},
	}

	writeJSON(t, filepath.Join(dir, "words.json"), words)
	writeJSON(t, filepath.Join(dir, "grammar.json"), grammar)
	writeJSON(t, filepath.Join(dir, "readings.json"), readings)

	bank, err := content.Load(dir)
	require.NoError(t, err)
	return bank
}

func newTestEngine(t *testing.T) (*Engine, *progress.Store) {
	t.Helper()
	t.Setenv("DATABASE_URL", "") // always sqlite in tests
	store, err := progress.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewWithRand(newTestBank(t), store, rand.New(rand.NewSource(1))), store
}

// decodeOptions decodes every option token of a presentation.
func decodeOptions(t *testing.T, p Presentation) []token.Token {
	t.Helper()
	tokens := make([]token.Token, 0, len(p.Options))
	for _, opt := range p.Options {
		tok, err := token.Decode(opt.Token)
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}
	return tokens
}

// pickAnswer returns the option token whose chosen value is (or is not) the
// expected one.
func pickAnswer(t *testing.T, p Presentation, correct bool) string {
	t.Helper()
	for _, opt := range p.Options {
		tok, err := token.Decode(opt.Token)
		require.NoError(t, err)
		if (tok.Chosen == tok.Expected) == correct {
			return opt.Token
		}
	}
	t.Fatalf("no option with correct=%v found", correct)
	return ""
}

func TestStartServesFourDistinctOptions(t *testing.T) {
	e, store := newTestEngine(t)

	pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryWords})
	require.NoError(t, err)

	require.Len(t, pres.Options, 4)
	assert.False(t, pres.Terminal)

	seen := make(map[string]bool)
	hasCorrect := false
	for _, tok := range decodeOptions(t, pres) {
		assert.Equal(t, token.KindAnswer, tok.Kind)
		assert.False(t, seen[tok.Chosen], "duplicate option %q", tok.Chosen)
		seen[tok.Chosen] = true
		if tok.Chosen == tok.Expected {
			hasCorrect = true
		}
	}
	assert.True(t, hasCorrect, "correct answer must be among the options")

	rec, err := store.Get(1)
	require.NoError(t, err)
	assert.Len(t, rec.UsedItems[models.CategoryWords], 1, "served item is marked used before presenting")
}

func TestCorrectAnswerAwardsScoreAndXP(t *testing.T) {
	e, store := newTestEngine(t)

	pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryWords})
	require.NoError(t, err)

	feedback, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: pickAnswer(t, pres, true)})
	require.NoError(t, err)

	assert.Contains(t, feedback.Text, "✅")
	require.Len(t, feedback.Options, 2) // continue and stop

	rec, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Score)
	assert.Equal(t, 10, rec.XP)
}

func TestWrongAnswerRevealsCorrectWithoutAward(t *testing.T) {
	e, store := newTestEngine(t)

	pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryWords})
	require.NoError(t, err)

	wrong := pickAnswer(t, pres, false)
	tok, err := token.Decode(wrong)
	require.NoError(t, err)

	feedback, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: wrong})
	require.NoError(t, err)

	assert.Contains(t, feedback.Text, "❌")
	assert.Contains(t, feedback.Text, tok.Expected)

	rec, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Score)
	assert.Equal(t, 0, rec.XP)
}

// Quiz scoring is at-least-once: the store keeps no per-answer history, so a
// replayed stale answer button scores again.
func TestReplayedAnswerScoresAgain(t *testing.T) {
	e, store := newTestEngine(t)

	pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryWords})
	require.NoError(t, err)
	answer := pickAnswer(t, pres, true)

	for i := 0; i < 2; i++ {
		_, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: answer})
		require.NoError(t, err)
	}

	rec, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Score)
	assert.Equal(t, 20, rec.XP)
}

// Items are burned at serve time: starting again without answering still
// never repeats an item, and the category exhausts after five serves.
func TestNoRepeatAndExhaustion(t *testing.T) {
	e, store := newTestEngine(t)

	for i := 0; i < 5; i++ {
		pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryWords})
		require.NoError(t, err)
		require.NotEmpty(t, pres.Options)
	}

	rec, err := store.Get(1)
	require.NoError(t, err)
	served := rec.UsedItems[models.CategoryWords]
	require.Len(t, served, 5)
	unique := make(map[string]bool)
	for _, id := range served {
		unique[id] = true
	}
	assert.Len(t, unique, 5, "no item is served twice")

	for i := 0; i < 3; i++ {
		pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryWords})
		require.NoError(t, err)
		assert.True(t, pres.Terminal)
		assert.Empty(t, pres.Options)
	}
}

func TestUnknownCategoryIsExhaustedNotError(t *testing.T) {
	e, _ := newTestEngine(t)

	pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: "poetry"})
	require.NoError(t, err)
	assert.True(t, pres.Terminal)
	assert.Empty(t, pres.Options)
}

func TestMalformedTokenFallsBackWithoutMutation(t *testing.T) {
	e, store := newTestEngine(t)

	for _, data := range []string{"", "garbage", "ans|words|id", "rans|readings|r-abai|x|a|b"} {
		pres, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: data})
		require.NoError(t, err)
		assert.NotEmpty(t, pres.Options, "fallback re-offers the category picker")
	}

	rec, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Score)
	assert.Empty(t, rec.UsedItems)
}

func TestStopShowsSummary(t *testing.T) {
	e, _ := newTestEngine(t)

	pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryWords})
	require.NoError(t, err)
	_, err = e.Step(Action{UserID: 1, Kind: ActionToken, Token: pickAnswer(t, pres, true)})
	require.NoError(t, err)

	stop, err := token.Encode(token.Token{Kind: token.KindStop, Category: models.CategoryWords})
	require.NoError(t, err)

	summary, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: stop})
	require.NoError(t, err)
	assert.True(t, summary.Terminal)
	assert.Contains(t, summary.Text, "10 XP")
	assert.Contains(t, summary.Text, "🥉")
}

func TestReadingProgressesInOrder(t *testing.T) {
	e, store := newTestEngine(t)

	// Start presents the passage text and question 1
	pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryReadings})
	require.NoError(t, err)
	assert.Contains(t, pres.Text, "Абай туралы")
	assert.Contains(t, pres.Text, "1/2")
	for _, tok := range decodeOptions(t, pres) {
		assert.Equal(t, 0, tok.SubIndex)
	}

	// A wrong answer re-presents question 1, no award, no cursor move
	wrongFeedback, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: pickAnswer(t, pres, false)})
	require.NoError(t, err)
	assert.Contains(t, wrongFeedback.Text, "❌")

	rec, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Score)
	assert.Equal(t, 0, rec.ReadingCursor["r-abai"])

	retry, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: wrongFeedback.Options[0].Token})
	require.NoError(t, err)
	assert.Contains(t, retry.Text, "1/2")

	// A correct answer unlocks question 2 only
	correctFeedback, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: pickAnswer(t, retry, true)})
	require.NoError(t, err)
	assert.Contains(t, correctFeedback.Text, "✅")
	require.Len(t, correctFeedback.Options, 1)

	rec, err = store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Score)
	assert.Equal(t, 1, rec.ReadingCursor["r-abai"])

	next, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: correctFeedback.Options[0].Token})
	require.NoError(t, err)
	assert.Contains(t, next.Text, "2/2")

	// Final correct answer finishes the passage
	done, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: pickAnswer(t, next, true)})
	require.NoError(t, err)
	assert.True(t, done.Terminal)
	assert.Contains(t, done.Text, "🎉")

	rec, err = store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Score)
	assert.Equal(t, 20, rec.XP)
	assert.Equal(t, 2, rec.ReadingCursor["r-abai"])
}

// A stale answer button for an already-passed question must not re-award: it
// re-presents the current question instead.
func TestStaleReadingAnswerIsNoOp(t *testing.T) {
	e, store := newTestEngine(t)

	pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryReadings})
	require.NoError(t, err)
	firstCorrect := pickAnswer(t, pres, true)

	_, err = e.Step(Action{UserID: 1, Kind: ActionToken, Token: firstCorrect})
	require.NoError(t, err)

	replay, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: firstCorrect})
	require.NoError(t, err)
	assert.Contains(t, replay.Text, "2/2", "stale token re-presents the cursor question")

	rec, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Score)
	assert.Equal(t, 1, rec.ReadingCursor["r-abai"])
}

// A reading button whose passage no longer resolves ends the flow with a
// terminal screen and touches no progress.
func TestMissingPassageIsTerminalWithoutMutation(t *testing.T) {
	e, store := newTestEngine(t)

	read, err := token.Encode(token.Token{Kind: token.KindRead, Category: models.CategoryReadings, ItemID: "r-gone"})
	require.NoError(t, err)
	answer, err := token.Encode(token.Token{Kind: token.KindReadAnswer, Category: models.CategoryReadings, ItemID: "r-gone", Chosen: "ақын", Expected: "ақын"})
	require.NoError(t, err)

	for _, data := range []string{read, answer} {
		pres, err := e.Step(Action{UserID: 1, Kind: ActionToken, Token: data})
		require.NoError(t, err)
		assert.True(t, pres.Terminal)
		assert.Empty(t, pres.Options)
	}

	rec, err := store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Score)
	assert.Equal(t, 0, rec.XP)
	assert.Empty(t, rec.UsedItems)
	assert.Empty(t, rec.ReadingCursor)
}

// countingStore implements Store and counts calls on the way through.
type countingStore struct {
	inner   *progress.Store
	gets    int
	mutates int
}

func (c *countingStore) Get(userID int64) (*models.ProgressRecord, error) {
	c.gets++
	return c.inner.Get(userID)
}

func (c *countingStore) Mutate(userID int64, fn func(*models.ProgressRecord)) (*models.ProgressRecord, error) {
	c.mutates++
	return c.inner.Mutate(userID, fn)
}

// Pick and mark must share one critical section: a start runs exactly one
// store mutation and no separate read, for quizzes and readings alike.
func TestStartPicksAndMarksInOneMutation(t *testing.T) {
	_, store := newTestEngine(t)
	counting := &countingStore{inner: store}
	e := NewWithRand(newTestBank(t), counting, rand.New(rand.NewSource(1)))

	for _, category := range []string{models.CategoryWords, models.CategoryReadings} {
		counting.gets, counting.mutates = 0, 0
		pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: category})
		require.NoError(t, err)
		require.NotEmpty(t, pres.Options)
		assert.Equal(t, 0, counting.gets, "%s: no read outside the mutation", category)
		assert.Equal(t, 1, counting.mutates, "%s: one mutation per start", category)
	}
}

func TestXPAlwaysTenTimesScore(t *testing.T) {
	e, store := newTestEngine(t)

	for i := 0; i < 4; i++ {
		pres, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryWords})
		require.NoError(t, err)
		correct := i%2 == 0
		_, err = e.Step(Action{UserID: 1, Kind: ActionToken, Token: pickAnswer(t, pres, correct)})
		require.NoError(t, err)

		rec, err := store.Get(1)
		require.NoError(t, err)
		assert.Equal(t, rec.XP, 10*rec.Score)
	}
}

// failingStore implements Store and fails every mutation.
type failingStore struct {
	rec *models.ProgressRecord
}

func (f *failingStore) Get(userID int64) (*models.ProgressRecord, error) {
	return f.rec, nil
}

func (f *failingStore) Mutate(userID int64, fn func(*models.ProgressRecord)) (*models.ProgressRecord, error) {
	return nil, errors.New("disk full")
}

// A failed persist must surface as an error so the dispatcher never confirms
// an award that was not durably written.
func TestStoreWriteFailureSurfaces(t *testing.T) {
	bank := newTestBank(t)
	e := NewWithRand(bank, &failingStore{rec: models.NewProgressRecord(1)}, rand.New(rand.NewSource(1)))

	_, err := e.Step(Action{UserID: 1, Kind: ActionStart, Category: models.CategoryWords})
	require.Error(t, err)

	answer, encErr := token.Encode(token.Token{Kind: token.KindAnswer, Category: models.CategoryWords, ItemID: "w-alma", Chosen: "яблоко", Expected: "яблоко"})
	require.NoError(t, encErr)
	_, err = e.Step(Action{UserID: 1, Kind: ActionToken, Token: answer})
	require.Error(t, err)
}

func TestLevelTiersAndBar(t *testing.T) {
	assert.Equal(t, "🥉 Бастауыш", Level(0))
	assert.Equal(t, "🥉 Бастауыш", Level(40))
	assert.Equal(t, "🥈 Орта", Level(50))
	assert.Equal(t, "🥈 Орта", Level(140))
	assert.Equal(t, "🥇 Жетік", Level(150))

	assert.Equal(t, "░░░░░░░░░░", Bar(0))
	assert.Equal(t, "███░░░░░░░", Bar(30))
	assert.Equal(t, "██████████", Bar(100))
	assert.Equal(t, "██████████", Bar(500))
}
