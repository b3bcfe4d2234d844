package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinechat/cinechat/internal/classifier"
	"github.com/cinechat/cinechat/internal/dialog"
	"github.com/cinechat/cinechat/internal/moviedb"
	"github.com/cinechat/cinechat/pkg/logging"
)

// fakeDialog scripts Converse replies and records the order of every call so
// tests can assert the profile-before-converse invariant.
type fakeDialog struct {
	mu        sync.Mutex
	calls     []string
	replies   []*dialog.Conversation
	profiles  []dialog.ProfileUpdate
	conversed []dialog.Conversation

	converseErr error
	profileErr  error
}

func (f *fakeDialog) Converse(ctx context.Context, conv *dialog.Conversation) (*dialog.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "converse")
	f.conversed = append(f.conversed, *conv)
	if f.converseErr != nil {
		return nil, f.converseErr
	}
	if len(f.replies) == 0 {
		return &dialog.Conversation{}, nil
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return next, nil
}

func (f *fakeDialog) UpdateProfile(ctx context.Context, profile dialog.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "profile")
	f.profiles = append(f.profiles, profile)
	return f.profileErr
}

type fakeClassifier struct {
	result *classifier.Result
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (*classifier.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeMovies struct {
	searchResult *moviedb.SearchResult
	searchErr    error
	searchParams map[string]any
	movie        *moviedb.Movie
	movieErr     error
	movieQuery   map[string]string
}

func (f *fakeMovies) SearchMovies(ctx context.Context, params map[string]any) (*moviedb.SearchResult, error) {
	f.searchParams = params
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResult, nil
}

func (f *fakeMovies) GetMovieInformation(ctx context.Context, query map[string]string) (*moviedb.Movie, error) {
	f.movieQuery = query
	if f.movieErr != nil {
		return nil, f.movieErr
	}
	return f.movie, nil
}

func twoClasses() *classifier.Result {
	return &classifier.Result{
		Classes: []classifier.Class{
			{ClassName: "find_movie", Confidence: 0.92},
			{ClassName: "chitchat", Confidence: 0.05},
		},
	}
}

func newTestOrchestrator(d *fakeDialog, c *fakeClassifier, m *fakeMovies) *Orchestrator {
	return NewOrchestrator(d, c, m, NewMemoryStore(), logging.New("error"), nil)
}

func TestProcessTurnNoSearch(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{
		{ClientID: "client-1", ConversationID: "conv-1", Response: []string{"", "", "Hello there"}},
	}}
	c := &fakeClassifier{result: twoClasses()}
	m := &fakeMovies{}
	o := newTestOrchestrator(d, c, m)

	result, err := o.ProcessTurn(context.Background(), &dialog.Conversation{ClientID: "client-1", Input: "hi"}, ChannelHTTP)
	require.NoError(t, err)

	assert.False(t, result.Searched)
	assert.Equal(t, "Hello there", result.Message)
	assert.Nil(t, result.Search)

	// Profile enrichment must land strictly before the converse it feeds.
	assert.Equal(t, []string{"profile", "converse"}, d.calls)

	require.Len(t, d.profiles, 1)
	profile := d.profiles[0]
	assert.Equal(t, "client-1", profile.ClientID)
	require.Len(t, profile.NameValues, 4)
	assert.Equal(t, dialog.NameValue{Name: "Class1", Value: "find_movie"}, profile.NameValues[0])
	assert.Equal(t, dialog.NameValue{Name: "Class1_Confidence", Value: 0.92}, profile.NameValues[1])
	assert.Equal(t, dialog.NameValue{Name: "Class2", Value: "chitchat"}, profile.NameValues[2])
}

func TestProcessTurnClassificationFailureIsNonFatal(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{
		{Response: []string{"What genre?"}},
	}}
	c := &fakeClassifier{err: errors.New("classifier down")}
	o := newTestOrchestrator(d, c, &fakeMovies{})

	result, err := o.ProcessTurn(context.Background(), &dialog.Conversation{ClientID: "client-1", Input: "hi"}, ChannelHTTP)
	require.NoError(t, err)

	assert.Equal(t, "What genre?", result.Message)
	// No enrichment this turn, but the dialog still advanced.
	assert.Equal(t, []string{"converse"}, d.calls)
}

func TestProcessTurnSingleClassDegrades(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{{Response: []string{"ok"}}}}
	c := &fakeClassifier{result: &classifier.Result{
		Classes: []classifier.Class{{ClassName: "find_movie", Confidence: 0.7}},
	}}
	o := newTestOrchestrator(d, c, &fakeMovies{})

	_, err := o.ProcessTurn(context.Background(), &dialog.Conversation{ClientID: "client-1", Input: "hi"}, ChannelHTTP)
	require.NoError(t, err)

	require.Len(t, d.profiles, 1)
	require.Len(t, d.profiles[0].NameValues, 2)
	assert.Equal(t, "Class1", d.profiles[0].NameValues[0].Name)
}

func TestProcessTurnNoClassesSkipsEnrichment(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{{Response: []string{"ok"}}}}
	c := &fakeClassifier{result: &classifier.Result{}}
	o := newTestOrchestrator(d, c, &fakeMovies{})

	_, err := o.ProcessTurn(context.Background(), &dialog.Conversation{ClientID: "client-1", Input: "hi"}, ChannelHTTP)
	require.NoError(t, err)
	assert.Equal(t, []string{"converse"}, d.calls)
}

func TestProcessTurnSearchFlow(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{
		{
			ClientID:       "client-1",
			ConversationID: "conv-1",
			Response:       []string{"We can SEARCH_NOW for you", "{query:'Inception', page:'new'}"},
		},
		{
			ClientID:       "client-1",
			ConversationID: "conv-1",
			Response:       []string{"Here are your movies"},
		},
	}}
	c := &fakeClassifier{result: twoClasses()}
	m := &fakeMovies{searchResult: &moviedb.SearchResult{
		CurrentIndex: 1,
		TotalPages:   5,
		TotalMovies:  42,
		Movies:       []moviedb.Movie{{MovieName: "Inception", Popularity: 8.3}},
	}}
	o := newTestOrchestrator(d, c, m)

	result, err := o.ProcessTurn(context.Background(), &dialog.Conversation{ClientID: "client-1", Input: "sci-fi from 2010"}, ChannelHTTP)
	require.NoError(t, err)

	assert.True(t, result.Searched)
	assert.Equal(t, "Here are your movies", result.Message)

	// Both enrichment points land before the converse that depends on them.
	assert.Equal(t, []string{"profile", "converse", "profile", "converse"}, d.calls)

	// Search parameters come from the case-folded payload line.
	assert.Equal(t, "inception", m.searchParams["query"])

	// Post-search enrichment carries the pagination facts.
	require.Len(t, d.profiles, 2)
	searchProfile := d.profiles[1]
	assert.Equal(t, []dialog.NameValue{
		{Name: "Current_Index", Value: 1},
		{Name: "Total_Pages", Value: 5},
		{Name: "Num_Movies", Value: 42},
	}, searchProfile.NameValues)

	// Page "new" selects the movies-returned prompt for the re-converse.
	require.Len(t, d.conversed, 2)
	assert.Equal(t, PromptMoviesReturned, d.conversed[1].Input)

	// The search result is shallow-merged onto the final reply.
	payload, err := result.Payload()
	require.NoError(t, err)
	assert.EqualValues(t, 42, payload["total_movies"])
	assert.EqualValues(t, 5, payload["total_pages"])
	assert.EqualValues(t, 1, payload["curent_index"])
	assert.Equal(t, "client-1", payload["client_id"])
}

func TestProcessTurnNumericPageUsesIndexPrompt(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{
		{ClientID: "client-1", Response: []string{"SEARCH_NOW", "{query:'Inception', page:3}"}},
		{ClientID: "client-1", Response: []string{"Page three"}},
	}}
	c := &fakeClassifier{result: twoClasses()}
	m := &fakeMovies{searchResult: &moviedb.SearchResult{CurrentIndex: 3, TotalPages: 5, TotalMovies: 42}}
	o := newTestOrchestrator(d, c, m)

	_, err := o.ProcessTurn(context.Background(), &dialog.Conversation{ClientID: "client-1", Input: "next page"}, ChannelHTTP)
	require.NoError(t, err)

	require.Len(t, d.conversed, 2)
	assert.Equal(t, PromptCurrentIndex, d.conversed[1].Input)
}

func TestProcessTurnMalformedParameters(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{
		{ClientID: "client-1", Response: []string{"SEARCH_NOW", "{query: 'unbalanced"}},
	}}
	c := &fakeClassifier{result: twoClasses()}
	o := newTestOrchestrator(d, c, &fakeMovies{})

	_, err := o.ProcessTurn(context.Background(), &dialog.Conversation{ClientID: "client-1", Input: "hi"}, ChannelHTTP)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedSearchParameters)
}

func TestProcessTurnSearchFailureIsFatal(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{
		{ClientID: "client-1", Response: []string{"SEARCH_NOW", "{query:'x', page:'new'}"}},
	}}
	c := &fakeClassifier{result: twoClasses()}
	m := &fakeMovies{searchErr: errors.New("moviedb down")}
	o := newTestOrchestrator(d, c, m)

	_, err := o.ProcessTurn(context.Background(), &dialog.Conversation{ClientID: "client-1", Input: "hi"}, ChannelHTTP)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moviedb down")
}

func TestProcessSMSFirstContact(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{
		{ClientID: "client-1", ConversationID: "conv-1", Response: []string{"Hi! What movies do you like?"}},
	}}
	c := &fakeClassifier{result: twoClasses()}
	o := newTestOrchestrator(d, c, &fakeMovies{})

	result, err := o.ProcessSMS(context.Background(), "+15550001111", "hello")
	require.NoError(t, err)

	assert.True(t, result.FirstContact)
	assert.Equal(t, "Hi! What movies do you like?", result.Message)
	// Allocation only; no classification on the very first turn.
	assert.Equal(t, 0, c.calls)
	require.Len(t, d.conversed, 1)
	assert.Empty(t, d.conversed[0].ClientID)
}

func TestProcessSMSSessionContinuity(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{
		{ClientID: "client-1", ConversationID: "conv-1", Response: []string{"greeting"}},
		{ClientID: "client-1", ConversationID: "conv-1", Response: []string{"second reply"}},
	}}
	c := &fakeClassifier{result: twoClasses()}
	o := newTestOrchestrator(d, c, &fakeMovies{})

	first, err := o.ProcessSMS(context.Background(), "+15550001111", "hello")
	require.NoError(t, err)
	require.True(t, first.FirstContact)

	second, err := o.ProcessSMS(context.Background(), "+15550001111", "sci-fi please")
	require.NoError(t, err)
	assert.False(t, second.FirstContact)
	assert.Equal(t, "second reply", second.Message)

	// Exactly one empty-payload allocation across both turns; the second turn
	// reuses the stored identifiers.
	allocations := 0
	for _, conv := range d.conversed {
		if conv.ClientID == "" {
			allocations++
		}
	}
	assert.Equal(t, 1, allocations)
	assert.Equal(t, "client-1", d.conversed[1].ClientID)
	assert.Equal(t, "sci-fi please", d.conversed[1].Input)
}

func TestProcessSMSAllocationFailure(t *testing.T) {
	d := &fakeDialog{converseErr: errors.New("dialog down")}
	o := newTestOrchestrator(d, &fakeClassifier{result: twoClasses()}, &fakeMovies{})

	_, err := o.ProcessSMS(context.Background(), "+15550001111", "hello")
	require.Error(t, err)
}

func TestSelectMovie(t *testing.T) {
	d := &fakeDialog{replies: []*dialog.Conversation{
		{ClientID: "client-1", ConversationID: "conv-1", Response: []string{"Great pick!"}},
	}}
	m := &fakeMovies{movie: &moviedb.Movie{MovieName: "Inception", Popularity: 8.5}}
	o := newTestOrchestrator(d, &fakeClassifier{result: twoClasses()}, m)

	payload, err := o.SelectMovie(context.Background(), map[string]string{
		"client_id":       "client-1",
		"conversation_id": "conv-1",
		"movie_id":        "27205",
	})
	require.NoError(t, err)

	// Profile lands before the selection prompt converse.
	assert.Equal(t, []string{"profile", "converse"}, d.calls)

	require.Len(t, d.profiles, 1)
	assert.Equal(t, []dialog.NameValue{
		{Name: "Selected_Movie", Value: "Inception"},
		{Name: "Popularity_Score", Value: 85.0},
	}, d.profiles[0].NameValues)

	require.Len(t, d.conversed, 1)
	assert.Equal(t, PromptMovieSelected, d.conversed[0].Input)

	movies, ok := payload["movies"].([]*moviedb.Movie)
	require.True(t, ok)
	require.Len(t, movies, 1)
	assert.Equal(t, "Inception", movies[0].MovieName)
}
