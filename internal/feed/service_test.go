package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/wikifeed/internal/database/dbtest"
	"github.com/hitoshi/wikifeed/internal/model"
	"github.com/hitoshi/wikifeed/internal/repository"
)

// --- テスト用モック ---

// scriptedSource は事前に用意したサマリーを順に返すSummarySource。
// 用意した分を使い切った後は最後のサマリーを返し続ける。
type scriptedSource struct {
	mu        sync.Mutex
	summaries []*model.RandomSummary
	err       error
	calls     int
}

func (s *scriptedSource) RandomSummary(_ context.Context) (*model.RandomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls - 1
	if i >= len(s.summaries) {
		i = len(s.summaries) - 1
	}
	return s.summaries[i], nil
}

// recordingCollector は試行結果を記録するMetricsCollector。
type recordingCollector struct {
	outcomes  []string
	exhausted int
}

func (c *recordingCollector) RecordSelectionAttempt(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}
func (c *recordingCollector) RecordSelectionExhausted() { c.exhausted++ }
func (c *recordingCollector) RecordSummaryLatency(time.Duration) {}
func (c *recordingCollector) RecordContentFetch(string) {}
func (c *recordingCollector) RecordReaction(string) {}

// exposureRaceRepo は最初のRecordでErrExposureExistsを返すExposureRepository。
// 並行リクエストに先を越された状況を再現する。
type exposureRaceRepo struct {
	repository.ExposureRepository
	lost bool
}

func (r *exposureRaceRepo) Record(ctx context.Context, userID, articleID int64) error {
	if !r.lost {
		r.lost = true
		return repository.ErrExposureExists
	}
	return r.ExposureRepository.Record(ctx, userID, articleID)
}

func strPtr(s string) *string { return &s }

func standard(pageID int64, title string) *model.RandomSummary {
	return &model.RandomSummary{
		Type:       "standard",
		PageID:     pageID,
		Title:      title,
		DesktopURL: fmt.Sprintf("https://ja.wikipedia.org/wiki/%s", title),
		Extract:    strPtr(title + " の概要"),
	}
}

type fixture struct {
	svc       *Service
	source    *scriptedSource
	users     *repository.SQLUserRepo
	articles  *repository.SQLArticleRepo
	exposures *repository.SQLExposureRepo
	logs      *bytes.Buffer
}

func newFixture(t *testing.T, source *scriptedSource, maxAttempts int) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	var buf bytes.Buffer
	f := &fixture{
		source:    source,
		users:     repository.NewSQLUserRepo(db),
		articles:  repository.NewSQLArticleRepo(db),
		exposures: repository.NewSQLExposureRepo(db),
		logs:      &buf,
	}
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.svc = NewService(source, f.users, f.articles, f.exposures, nil, logger,
		ServiceConfig{Lang: "ja", MaxAttempts: maxAttempts})
	return f
}

// --- NextArticle テスト ---

func TestNextArticle_ServesStandardArticle(t *testing.T) {
	src := &scriptedSource{summaries: []*model.RandomSummary{standard(42, "T")}}
	f := newFixture(t, src, 12)
	ctx := context.Background()

	got, err := f.svc.NextArticle(ctx, "alice")
	if err != nil {
		t.Fatalf("NextArticle がエラーを返した: %v", err)
	}

	if got.Title != "T" || got.URL != "https://ja.wikipedia.org/wiki/T" {
		t.Errorf("served = %+v", got)
	}
	if got.Summary.Extract == nil || *got.Summary.Extract != "T の概要" {
		t.Errorf("Extract = %v", got.Summary.Extract)
	}
	if got.Summary.Thumbnail != nil {
		t.Errorf("Thumbnail = %v, want nil", got.Summary.Thumbnail)
	}

	a, err := f.articles.FindByPageID(ctx, "ja", 42)
	if err != nil || a == nil {
		t.Fatalf("記事が保存されていない: %v", err)
	}
	if a.ID != got.ArticleID {
		t.Errorf("ArticleID = %d, want %d", got.ArticleID, a.ID)
	}

	userID, _ := f.users.Ensure(ctx, "alice")
	exp, err := f.exposures.Find(ctx, userID, got.ArticleID)
	if err != nil || exp == nil {
		t.Fatalf("配信記録が作成されていない: %v", err)
	}
	if exp.Reacted || exp.Reaction != nil {
		t.Errorf("新規配信記録は未反応であるべき: %+v", exp)
	}
}

// 曖昧さ回避ページは保存されず、次の試行に進む
func TestNextArticle_SkipsNonStandardWithoutPersisting(t *testing.T) {
	disamb := standard(1, "D")
	disamb.Type = "disambiguation"
	src := &scriptedSource{summaries: []*model.RandomSummary{disamb, standard(2, "S")}}
	f := newFixture(t, src, 12)
	ctx := context.Background()

	got, err := f.svc.NextArticle(ctx, "alice")
	if err != nil {
		t.Fatalf("NextArticle がエラーを返した: %v", err)
	}
	if got.Title != "S" {
		t.Errorf("Title = %q, want S", got.Title)
	}

	a, err := f.articles.FindByPageID(ctx, "ja", 1)
	if err != nil {
		t.Fatalf("FindByPageID がエラーを返した: %v", err)
	}
	if a != nil {
		t.Error("曖昧さ回避ページが保存されている")
	}
}

// 必須フィールドが欠落したサマリーは除外される
func TestNextArticle_SkipsMalformedSummary(t *testing.T) {
	noURL := standard(5, "NoURL")
	noURL.DesktopURL = ""
	src := &scriptedSource{summaries: []*model.RandomSummary{noURL, standard(6, "OK")}}
	f := newFixture(t, src, 12)

	got, err := f.svc.NextArticle(context.Background(), "alice")
	if err != nil {
		t.Fatalf("NextArticle がエラーを返した: %v", err)
	}
	if got.Title != "OK" {
		t.Errorf("Title = %q, want OK", got.Title)
	}
}

// 同じユーザーに同じ記事は二度配信されない
func TestNextArticle_NeverRepeatsForUser(t *testing.T) {
	src := &scriptedSource{summaries: []*model.RandomSummary{
		standard(10, "A"), standard(10, "A"), standard(11, "B"),
	}}
	f := newFixture(t, src, 12)
	ctx := context.Background()

	first, err := f.svc.NextArticle(ctx, "alice")
	if err != nil {
		t.Fatalf("1回目の NextArticle がエラーを返した: %v", err)
	}
	second, err := f.svc.NextArticle(ctx, "alice")
	if err != nil {
		t.Fatalf("2回目の NextArticle がエラーを返した: %v", err)
	}

	if first.ArticleID == second.ArticleID {
		t.Fatalf("同じ記事が二度配信された: %d", first.ArticleID)
	}
	if second.Title != "B" {
		t.Errorf("2回目のTitle = %q, want B", second.Title)
	}
	if src.calls != 3 {
		t.Errorf("RandomSummary calls = %d, want 3", src.calls)
	}
}

// 別のユーザーには同じ記事を配信でき、記事行は共有される
func TestNextArticle_SharedArticleAcrossUsers(t *testing.T) {
	src := &scriptedSource{summaries: []*model.RandomSummary{standard(20, "Shared")}}
	f := newFixture(t, src, 3)
	ctx := context.Background()

	a, err := f.svc.NextArticle(ctx, "alice")
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	b, err := f.svc.NextArticle(ctx, "bob")
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	if a.ArticleID != b.ArticleID {
		t.Errorf("article ids differ: %d vs %d", a.ArticleID, b.ArticleID)
	}
}

// 試行回数を使い切るとNO_UNSEEN_ARTICLEを返し、配信記録は増えない
func TestNextArticle_ExhaustsAttempts(t *testing.T) {
	src := &scriptedSource{summaries: []*model.RandomSummary{standard(30, "Only")}}
	f := newFixture(t, src, 4)
	ctx := context.Background()

	if _, err := f.svc.NextArticle(ctx, "alice"); err != nil {
		t.Fatalf("1回目の NextArticle がエラーを返した: %v", err)
	}

	_, err := f.svc.NextArticle(ctx, "alice")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeNoUnseenArticle {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeNoUnseenArticle)
	}
	if !strings.Contains(apiErr.Message, "No unseen article found (try again)") {
		t.Errorf("Message = %q", apiErr.Message)
	}
	// 1回目の1試行 + 2回目の4試行
	if src.calls != 5 {
		t.Errorf("RandomSummary calls = %d, want 5", src.calls)
	}
	if !strings.Contains(f.logs.String(), "no unseen article") {
		t.Error("試行上限到達がログに記録されていない")
	}
}

// 上流の取得失敗はUPSTREAM_FETCH_FAILEDとして即座に返す
func TestNextArticle_UpstreamFailure(t *testing.T) {
	src := &scriptedSource{err: errors.New("connection refused")}
	f := newFixture(t, src, 12)

	_, err := f.svc.NextArticle(context.Background(), "alice")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeUpstreamFetchFailed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeUpstreamFetchFailed)
	}
	if src.calls != 1 {
		t.Errorf("RandomSummary calls = %d, want 1 (no retry on upstream failure)", src.calls)
	}
}

// 配信記録の競合に負けた場合は次の試行で別の記事を配信する
func TestNextArticle_RaceLostContinues(t *testing.T) {
	src := &scriptedSource{summaries: []*model.RandomSummary{standard(40, "Race"), standard(41, "Next")}}
	f := newFixture(t, src, 12)
	race := &exposureRaceRepo{ExposureRepository: f.exposures}
	collector := &recordingCollector{}
	f.svc = NewService(src, f.users, f.articles, race, collector, slog.Default(),
		ServiceConfig{Lang: "ja", MaxAttempts: 12})

	got, err := f.svc.NextArticle(context.Background(), "alice")
	if err != nil {
		t.Fatalf("NextArticle がエラーを返した: %v", err)
	}
	if got.Title != "Next" {
		t.Errorf("Title = %q, want Next", got.Title)
	}
	want := []string{"race_lost", "served"}
	if strings.Join(collector.outcomes, ",") != strings.Join(want, ",") {
		t.Errorf("outcomes = %v, want %v", collector.outcomes, want)
	}
}

// 同一ユーザーの並行リクエストでも同じ記事が二度配信されない
func TestNextArticle_ConcurrentRequestsDoNotDuplicate(t *testing.T) {
	summaries := make([]*model.RandomSummary, 0, 40)
	for i := 0; i < 40; i++ {
		summaries = append(summaries, standard(int64(100+i%5), fmt.Sprintf("P%d", i%5)))
	}
	src := &scriptedSource{summaries: summaries}
	f := newFixture(t, src, 12)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	served := make(map[int64]int)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.svc.NextArticle(ctx, "alice")
			if err != nil {
				return
			}
			mu.Lock()
			served[got.ArticleID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, n := range served {
		if n > 1 {
			t.Errorf("article %d served %d times", id, n)
		}
	}
}

func TestNewService_DefaultMaxAttempts(t *testing.T) {
	svc := NewService(&scriptedSource{}, nil, nil, nil, nil, slog.Default(), ServiceConfig{Lang: "ja"})
	if svc.maxAttempts != DefaultMaxAttempts {
		t.Errorf("maxAttempts = %d, want %d", svc.maxAttempts, DefaultMaxAttempts)
	}
}
