package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taleweave/backend/internal/middleware"
	"github.com/taleweave/backend/internal/models"
	"github.com/taleweave/backend/internal/repositories"
)

type inMemoryStoryStore struct {
	stories map[string]models.Story
}

func newInMemoryStoryStore() *inMemoryStoryStore {
	return &inMemoryStoryStore{stories: make(map[string]models.Story)}
}

func (s *inMemoryStoryStore) Create(_ context.Context, story models.Story) error {
	if _, ok := s.stories[story.ID]; ok {
		return repositories.ErrConflict
	}
	s.stories[story.ID] = story
	return nil
}

func (s *inMemoryStoryStore) FindByID(_ context.Context, id string) (models.Story, error) {
	story, ok := s.stories[id]
	if !ok {
		return models.Story{}, repositories.ErrNotFound
	}
	return story, nil
}

func (s *inMemoryStoryStore) ListAll(_ context.Context) ([]models.Story, error) {
	return s.sorted(func(models.Story) bool { return true }), nil
}

func (s *inMemoryStoryStore) ListByAuthor(_ context.Context, authorID string) ([]models.Story, error) {
	return s.sorted(func(st models.Story) bool { return st.AuthorID == authorID }), nil
}

func (s *inMemoryStoryStore) ListBookmarkedBy(_ context.Context, identityID string) ([]models.Story, error) {
	return s.sorted(func(st models.Story) bool {
		for _, id := range st.Bookmarks {
			if id == identityID {
				return true
			}
		}
		return false
	}), nil
}

func (s *inMemoryStoryStore) sorted(keep func(models.Story) bool) []models.Story {
	var out []models.Story
	for _, story := range s.stories {
		if keep(story) {
			out = append(out, story)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *inMemoryStoryStore) Update(_ context.Context, story models.Story) error {
	existing, ok := s.stories[story.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	existing.Title = story.Title
	existing.Body = story.Body
	existing.Category = story.Category
	existing.ImageURL = story.ImageURL
	existing.AudioURL = story.AudioURL
	existing.VideoURL = story.VideoURL
	existing.UpdatedAt = story.UpdatedAt
	s.stories[story.ID] = existing
	return nil
}

func (s *inMemoryStoryStore) Delete(_ context.Context, id string) error {
	if _, ok := s.stories[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.stories, id)
	return nil
}

func (s *inMemoryStoryStore) ToggleLike(_ context.Context, storyID, identityID string, at time.Time) error {
	return s.flip(storyID, identityID, at, true)
}

func (s *inMemoryStoryStore) ToggleBookmark(_ context.Context, storyID, identityID string, at time.Time) error {
	return s.flip(storyID, identityID, at, false)
}

func (s *inMemoryStoryStore) flip(storyID, identityID string, at time.Time, likes bool) error {
	story, ok := s.stories[storyID]
	if !ok {
		return repositories.ErrNotFound
	}
	set := story.Bookmarks
	if likes {
		set = story.Likes
	}
	var next []string
	found := false
	for _, id := range set {
		if id == identityID {
			found = true
			continue
		}
		next = append(next, id)
	}
	if !found {
		next = append(next, identityID)
	}
	if next == nil {
		next = []string{}
	}
	if likes {
		story.Likes = next
	} else {
		story.Bookmarks = next
	}
	story.UpdatedAt = at
	s.stories[storyID] = story
	return nil
}

func (s *inMemoryStoryStore) AppendComment(_ context.Context, storyID string, comment models.Comment, at time.Time) error {
	story, ok := s.stories[storyID]
	if !ok {
		return repositories.ErrNotFound
	}
	story.Comments = append(story.Comments, comment)
	story.UpdatedAt = at
	s.stories[storyID] = story
	return nil
}

func (s *inMemoryStoryStore) ReplaceComments(_ context.Context, storyID string, comments []models.Comment, at time.Time) error {
	story, ok := s.stories[storyID]
	if !ok {
		return repositories.ErrNotFound
	}
	story.Comments = comments
	story.UpdatedAt = at
	s.stories[storyID] = story
	return nil
}

type inMemoryUserStore struct {
	users          map[string]models.User
	cascadeDeleted []models.User
}

func newInMemoryUserStore(users ...models.User) *inMemoryUserStore {
	s := &inMemoryUserStore{users: make(map[string]models.User)}
	for _, user := range users {
		s.users[user.ID] = user
	}
	return s
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) FindByIdentityID(_ context.Context, identityID string) (models.User, error) {
	for _, user := range s.users {
		if user.IdentityID == identityID {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) Update(_ context.Context, user models.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) ProfilesByIDs(_ context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

func (s *inMemoryUserStore) DeleteCascade(_ context.Context, user models.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.users, user.ID)
	s.cascadeDeleted = append(s.cascadeDeleted, user)
	return nil
}

type fakeMediaStore struct {
	uploads []string
	err     error
}

func (f *fakeMediaStore) Upload(_ context.Context, folder, filename string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	_, _ = io.Copy(io.Discard, r)
	f.uploads = append(f.uploads, folder)
	return fmt.Sprintf("https://media.test/%s/%s", folder, filename), nil
}

func withCaller(req *http.Request, user models.User) *http.Request {
	return req.WithContext(middleware.WithUser(req.Context(), user))
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for name, filename := range files {
		part, err := writer.CreateFormFile(name, filename)
		if err != nil {
			t.Fatalf("create file part %s: %v", name, err)
		}
		if _, err := part.Write([]byte("payload")); err != nil {
			t.Fatalf("write file part %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

var (
	testAuthor = models.User{ID: "user-1", IdentityID: "idp-1", Name: "ana"}
	testReader = models.User{ID: "user-2", IdentityID: "idp-2", Name: "ben"}
)

func TestStoryHandlerListOrdersNewestFirst(t *testing.T) {
	stories := newInMemoryStoryStore()
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	stories.stories["old"] = models.Story{ID: "old", AuthorID: testAuthor.ID, CreatedAt: base}
	stories.stories["new"] = models.Story{ID: "new", AuthorID: testAuthor.ID, CreatedAt: base.Add(time.Hour)}

	handler := StoryHandler{Stories: stories, Users: newInMemoryUserStore(testAuthor)}

	req := httptest.NewRequest(http.MethodGet, "/stories", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp []storyView
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(resp) != 2 || resp[0].ID != "new" || resp[1].ID != "old" {
		t.Fatalf("expected newest-first ordering, got %+v", resp)
	}
}

func TestStoryHandlerCreate(t *testing.T) {
	stories := newInMemoryStoryStore()
	media := &fakeMediaStore{}
	now := time.Date(2025, time.March, 2, 12, 0, 0, 0, time.UTC)
	handler := StoryHandler{
		Stories: stories,
		Users:   newInMemoryUserStore(testAuthor),
		Media:   media,
		NowFunc: func() time.Time { return now },
	}

	body, contentType := multipartBody(t,
		map[string]string{"title": "First", "content": "Once upon a time.", "category": "fiction"},
		map[string]string{"image": "cover.png"},
	)

	req := httptest.NewRequest(http.MethodPost, "/stories", body)
	req.Header.Set("Content-Type", contentType)
	req = withCaller(req, testAuthor)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp storyView
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.AuthorID != testAuthor.ID || resp.AuthorName != "ana" {
		t.Fatalf("expected caller as author, got %+v", resp)
	}
	if resp.ImageURL == nil || !strings.Contains(*resp.ImageURL, "/images/") {
		t.Fatalf("expected image url, got %+v", resp.ImageURL)
	}
	if resp.CreatedAt != now {
		t.Fatalf("expected createdAt to use NowFunc")
	}
	if len(media.uploads) != 1 || media.uploads[0] != models.MediaFolderImages {
		t.Fatalf("unexpected uploads: %v", media.uploads)
	}
	if _, ok := stories.stories[resp.ID]; !ok {
		t.Fatalf("expected story to be stored")
	}
}

func TestStoryHandlerCreateSerializesEmptyCollections(t *testing.T) {
	stories := newInMemoryStoryStore()
	handler := StoryHandler{Stories: stories, Users: newInMemoryUserStore(testAuthor), Media: &fakeMediaStore{}}

	body, contentType := multipartBody(t,
		map[string]string{"title": "Bare", "content": "No media here.", "category": "essay"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/stories", body)
	req.Header.Set("Content-Type", contentType)
	req = withCaller(req, testAuthor)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if string(raw["imageUrl"]) != "null" || string(raw["audioUrl"]) != "null" || string(raw["videoUrl"]) != "null" {
		t.Fatalf("expected absent media to serialize as null, got image=%s audio=%s video=%s",
			raw["imageUrl"], raw["audioUrl"], raw["videoUrl"])
	}
	if string(raw["likes"]) != "[]" || string(raw["bookmarks"]) != "[]" || string(raw["comments"]) != "[]" {
		t.Fatalf("expected empty collections to serialize as [], got likes=%s bookmarks=%s comments=%s",
			raw["likes"], raw["bookmarks"], raw["comments"])
	}
}

func TestStoryHandlerCreateValidation(t *testing.T) {
	handler := StoryHandler{Stories: newInMemoryStoryStore(), Users: newInMemoryUserStore(testAuthor), Media: &fakeMediaStore{}}

	body, contentType := multipartBody(t, map[string]string{"title": "No body", "category": "fiction"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/stories", body)
	req.Header.Set("Content-Type", contentType)
	req = withCaller(req, testAuthor)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestStoryHandlerUpdate(t *testing.T) {
	stories := newInMemoryStoryStore()
	stories.stories["s1"] = models.Story{
		ID: "s1", AuthorID: testAuthor.ID, Title: "Old title", Body: "Old body", Category: "fiction",
		ImageURL: "https://media.test/images/old.png",
	}
	handler := StoryHandler{Stories: stories, Users: newInMemoryUserStore(testAuthor), Media: &fakeMediaStore{}}

	body, contentType := multipartBody(t, map[string]string{"title": "New title"}, nil)

	req := httptest.NewRequest(http.MethodPut, "/stories/s1", body)
	req.Header.Set("Content-Type", contentType)
	req = withCaller(withURLParams(req, map[string]string{"id": "s1"}), testAuthor)
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	updated := stories.stories["s1"]
	if updated.Title != "New title" {
		t.Fatalf("expected title to change, got %q", updated.Title)
	}
	if updated.Body != "Old body" || updated.Category != "fiction" {
		t.Fatalf("expected omitted fields to keep old values, got %+v", updated)
	}
	if updated.ImageURL != "https://media.test/images/old.png" {
		t.Fatalf("expected image to survive update without file, got %q", updated.ImageURL)
	}
}

func TestStoryHandlerUpdateForbiddenForNonOwner(t *testing.T) {
	stories := newInMemoryStoryStore()
	stories.stories["s1"] = models.Story{ID: "s1", AuthorID: testAuthor.ID, Title: "Mine"}
	handler := StoryHandler{Stories: stories, Users: newInMemoryUserStore(testAuthor, testReader), Media: &fakeMediaStore{}}

	body, contentType := multipartBody(t, map[string]string{"title": "Hijack"}, nil)

	req := httptest.NewRequest(http.MethodPut, "/stories/s1", body)
	req.Header.Set("Content-Type", contentType)
	req = withCaller(withURLParams(req, map[string]string{"id": "s1"}), testReader)
	rec := httptest.NewRecorder()

	handler.Update(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d got %d", http.StatusForbidden, rec.Code)
	}
	if stories.stories["s1"].Title != "Mine" {
		t.Fatalf("expected story to be untouched")
	}
}

func TestStoryHandlerDelete(t *testing.T) {
	stories := newInMemoryStoryStore()
	stories.stories["s1"] = models.Story{ID: "s1", AuthorID: testAuthor.ID}
	handler := StoryHandler{Stories: stories, Users: newInMemoryUserStore(testAuthor, testReader)}

	req := httptest.NewRequest(http.MethodDelete, "/stories/s1", nil)
	req = withCaller(withURLParams(req, map[string]string{"id": "s1"}), testReader)
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d for non-owner got %d", http.StatusForbidden, rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/stories/s1", nil)
	req = withCaller(withURLParams(req, map[string]string{"id": "s1"}), testAuthor)
	rec = httptest.NewRecorder()

	handler.Delete(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d got %d", http.StatusNoContent, rec.Code)
	}
	if _, ok := stories.stories["s1"]; ok {
		t.Fatalf("expected story to be deleted")
	}
}

func TestStoryHandlerToggleLikeIsInvolution(t *testing.T) {
	stories := newInMemoryStoryStore()
	stories.stories["s1"] = models.Story{ID: "s1", AuthorID: testAuthor.ID}
	handler := StoryHandler{Stories: stories, Users: newInMemoryUserStore(testAuthor, testReader)}

	like := func() storyView {
		req := httptest.NewRequest(http.MethodPost, "/stories/s1/like", nil)
		req = withCaller(withURLParams(req, map[string]string{"id": "s1"}), testReader)
		rec := httptest.NewRecorder()
		handler.ToggleLike(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
		}
		var resp storyView
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return resp
	}

	first := like()
	if len(first.Likes) != 1 || first.Likes[0] != testReader.IdentityID {
		t.Fatalf("expected like set [%s], got %v", testReader.IdentityID, first.Likes)
	}

	second := like()
	if len(second.Likes) != 0 {
		t.Fatalf("expected like set restored to empty, got %v", second.Likes)
	}
}

func TestStoryHandlerComments(t *testing.T) {
	stories := newInMemoryStoryStore()
	stories.stories["s1"] = models.Story{ID: "s1", AuthorID: testAuthor.ID}
	handler := StoryHandler{Stories: stories, Users: newInMemoryUserStore(testAuthor, testReader)}

	req := httptest.NewRequest(http.MethodPost, "/stories/s1/comment", bytes.NewReader([]byte(`{"content":"Loved it"}`)))
	req = withCaller(withURLParams(req, map[string]string{"id": "s1"}), testReader)
	rec := httptest.NewRecorder()

	handler.AddComment(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}

	var resp storyView
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Comments) != 1 || resp.Comments[0].Content != "Loved it" || resp.Comments[0].AuthorName != "ben" {
		t.Fatalf("unexpected comments: %+v", resp.Comments)
	}

	commentID := resp.Comments[0].ID

	// A different user cannot remove the comment.
	req = httptest.NewRequest(http.MethodDelete, "/stories/s1/comment/"+commentID, nil)
	req = withCaller(withURLParams(req, map[string]string{"storyID": "s1", "commentID": commentID}), testAuthor)
	rec = httptest.NewRecorder()

	handler.DeleteComment(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d got %d", http.StatusForbidden, rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/stories/s1/comment/"+commentID, nil)
	req = withCaller(withURLParams(req, map[string]string{"storyID": "s1", "commentID": commentID}), testReader)
	rec = httptest.NewRecorder()

	handler.DeleteComment(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	if len(stories.stories["s1"].Comments) != 0 {
		t.Fatalf("expected comment to be removed")
	}

	req = httptest.NewRequest(http.MethodDelete, "/stories/s1/comment/"+commentID, nil)
	req = withCaller(withURLParams(req, map[string]string{"storyID": "s1", "commentID": commentID}), testReader)
	rec = httptest.NewRecorder()

	handler.DeleteComment(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d for missing comment got %d", http.StatusNotFound, rec.Code)
	}
}

func TestStoryHandlerCommentAuthorFallsBackToUnknown(t *testing.T) {
	stories := newInMemoryStoryStore()
	stories.stories["s1"] = models.Story{
		ID:       "s1",
		AuthorID: testAuthor.ID,
		Comments: []models.Comment{{ID: "c1", UserID: "gone", AuthorName: "ghost", Body: "hello"}},
	}
	handler := StoryHandler{Stories: stories, Users: newInMemoryUserStore(testAuthor)}

	req := httptest.NewRequest(http.MethodGet, "/stories", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	var resp []storyView
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp[0].Comments[0].AuthorName != models.UnknownAuthor {
		t.Fatalf("expected %q for deleted commenter, got %q", models.UnknownAuthor, resp[0].Comments[0].AuthorName)
	}
}

func TestStoryHandlerListBookmarked(t *testing.T) {
	stories := newInMemoryStoryStore()
	stories.stories["s1"] = models.Story{ID: "s1", AuthorID: testAuthor.ID, Bookmarks: []string{testReader.IdentityID}}
	stories.stories["s2"] = models.Story{ID: "s2", AuthorID: testAuthor.ID}
	handler := StoryHandler{Stories: stories, Users: newInMemoryUserStore(testAuthor, testReader)}

	req := httptest.NewRequest(http.MethodGet, "/stories/bookmarked", nil)
	req = withCaller(req, testReader)
	rec := httptest.NewRecorder()

	handler.ListBookmarked(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp []storyView
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "s1" {
		t.Fatalf("unexpected bookmarked stories: %+v", resp)
	}
}

func TestStoryHandlerUploadFailure(t *testing.T) {
	stories := newInMemoryStoryStore()
	handler := StoryHandler{
		Stories: stories,
		Users:   newInMemoryUserStore(testAuthor),
		Media:   &fakeMediaStore{err: fmt.Errorf("bucket unreachable")},
	}

	body, contentType := multipartBody(t,
		map[string]string{"title": "T", "content": "C", "category": "fiction"},
		map[string]string{"video": "clip.mp4"},
	)

	req := httptest.NewRequest(http.MethodPost, "/stories", body)
	req.Header.Set("Content-Type", contentType)
	req = withCaller(req, testAuthor)
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d got %d", http.StatusInternalServerError, rec.Code)
	}
	if len(stories.stories) != 0 {
		t.Fatalf("expected no story stored after upload failure")
	}
}
