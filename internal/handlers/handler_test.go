package handlers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/ytakahashi/boardsync/internal/auth"
	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/repository"
	"github.com/ytakahashi/boardsync/internal/store/memory"
)

type testServer struct {
	e        *echo.Echo
	repo     *repository.Repository
	verifier *auth.LocalVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	objects := memory.NewObjects("http://example.test/objects")
	repo := repository.New(memory.New(), objects, auth.ContextResolver{})
	verifier := auth.NewLocalVerifier("test-secret")

	e := echo.New()
	NewHandler(repo, verifier, nil, objects).Register(e)
	return &testServer{e: e, repo: repo, verifier: verifier}
}

func (s *testServer) token(t *testing.T, uid string) string {
	t.Helper()
	tok, err := s.verifier.Sign(auth.Identity{UID: uid, Name: "User " + uid, Email: uid + "@example.com"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

// ctxFor signs uid in for setting data up through the repository.
func ctxFor(uid string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UID: uid, Name: "User " + uid})
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRequiresValidToken(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, http.MethodPost, "/api/boards", "", `{"name":"x"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", rec.Code)
	}
	forged, _ := auth.NewLocalVerifier("other").Sign(auth.Identity{UID: "u1"})
	if rec := s.do(t, http.MethodGet, "/api/profile", forged, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/boards/x", "not-a-jwt", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodGet, "/api/boards/x/stream?token=not-a-jwt", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage query token = %d", rec.Code)
	}
}

type failingVerifier struct{}

func (failingVerifier) Verify(ctx context.Context, idToken string) (auth.Identity, error) {
	return auth.Identity{}, errors.New("key set unavailable")
}

func TestVerifierErrorsAreUnauthorized(t *testing.T) {
	objects := memory.NewObjects("http://example.test/objects")
	repo := repository.New(memory.New(), objects, auth.ContextResolver{})
	e := echo.New()
	NewHandler(repo, failingVerifier{}, nil, objects).Register(e)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer abc")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSessionAndProfile(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1")

	rec := s.do(t, http.MethodPost, "/api/session", tok, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("session = %d %s", rec.Code, rec.Body.String())
	}
	user := decodeBody[models.User](t, rec)
	if user.ID != "u1" || user.DisplayName != "User u1" {
		t.Fatalf("user = %+v", user)
	}

	rec = s.do(t, http.MethodPatch, "/api/profile", tok, `{"bio":"hello","preferences":{"theme":"dark"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update profile = %d %s", rec.Code, rec.Body.String())
	}
	user = decodeBody[models.User](t, rec)
	if user.Bio != "hello" || user.Preferences["theme"] != "dark" {
		t.Fatalf("user = %+v", user)
	}

	if rec := s.do(t, http.MethodPatch, "/api/profile", tok, `{"displayName":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank display name = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPatch, "/api/profile", tok, `{"nickname":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field = %d", rec.Code)
	}
}

func TestCreateBoard(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1")

	rec := s.do(t, http.MethodPost, "/api/boards", tok, `{"name":" Sprint ","backgroundColor":"#0079bf"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	board := decodeBody[models.Board](t, rec)
	if board.Name != "Sprint" || board.OwnerID != "u1" || !board.HasMember("u1") {
		t.Fatalf("board = %+v", board)
	}

	rec = s.do(t, http.MethodPost, "/api/boards", tok, `{"name":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "board name must not be blank") {
		t.Fatalf("error body = %s", rec.Body.String())
	}
}

func TestNonMemberSeesNotFound(t *testing.T) {
	s := newTestServer(t)
	board, _ := s.repo.CreateBoard(ctxFor("owner"), models.Board{Name: "private"})
	list, _ := s.repo.CreateList(ctxFor("owner"), board.ID, "todo")
	outsider := s.token(t, "outsider")

	for _, path := range []string{"/api/boards/" + board.ID, "/api/boards/" + board.ID + "/stream"} {
		if rec := s.do(t, http.MethodGet, path, outsider, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("GET %s = %d", path, rec.Code)
		}
	}
	if rec := s.do(t, http.MethodPost, "/api/lists/"+list.ID+"/cards", outsider, `{"title":"sneaky"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("create card = %d", rec.Code)
	}

	owner := s.token(t, "owner")
	if rec := s.do(t, http.MethodPost, "/api/boards/"+board.ID+"/members", owner, `{"userId":"outsider"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("add member = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/boards/"+board.ID, outsider, ""); rec.Code != http.StatusOK {
		t.Fatalf("member GET = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/boards/"+board.ID+"/members/owner", outsider, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("removing owner = %d", rec.Code)
	}
}

func TestCardLifecycle(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1")
	ctx := ctxFor("u1")
	board, _ := s.repo.CreateBoard(ctx, models.Board{Name: "b"})
	todo, _ := s.repo.CreateList(ctx, board.ID, "todo")
	done, _ := s.repo.CreateList(ctx, board.ID, "done")
	other, _ := s.repo.CreateBoard(ctx, models.Board{Name: "other"})
	elsewhere, _ := s.repo.CreateList(ctx, other.ID, "elsewhere")

	rec := s.do(t, http.MethodPost, "/api/lists/"+todo.ID+"/cards", tok, `{"title":"Write docs","dueDate":1717200000000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card = %d %s", rec.Code, rec.Body.String())
	}
	card := decodeBody[models.Card](t, rec)

	if rec := s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/move", tok, `{"listId":"`+elsewhere.ID+`"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("cross-board move = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/move", tok, `{"listId":"`+done.ID+`"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("move = %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPut, "/api/cards/"+card.ID+"/location", tok, `{"latitude":91,"longitude":0,"address":"","placeName":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad latitude = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, "/api/cards/"+card.ID+"/location", tok, `{"latitude":35.6,"longitude":139.7,"address":"Chiyoda","placeName":"Office"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("location = %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/assignees", tok, `{"userId":"u1"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("assign = %d", rec.Code)
	}

	got, _ := s.repo.GetCard(ctx, card.ID)
	if got.ListID != done.ID || got.Location == nil || got.Location.PlaceName != "Office" || len(got.AssignedMemberIDs) != 1 {
		t.Fatalf("card = %+v", got)
	}
	if got.DueDate == nil || *got.DueDate != 1717200000000 {
		t.Fatalf("due date = %v", got.DueDate)
	}

	if rec := s.do(t, http.MethodPut, "/api/cards/"+card.ID+"/location", tok, `null`); rec.Code != http.StatusNoContent {
		t.Fatalf("clear location = %d", rec.Code)
	}
	if got, _ = s.repo.GetCard(ctx, card.ID); got.Location != nil {
		t.Fatalf("location not cleared")
	}

	if rec := s.do(t, http.MethodDelete, "/api/cards/"+card.ID, tok, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/cards/"+card.ID, tok, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", rec.Code)
	}
}

func TestCreateCardWritesOptionalFieldsWithTheCard(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1")
	board, _ := s.repo.CreateBoard(ctxFor("u1"), models.Board{Name: "b"})
	list, _ := s.repo.CreateList(ctxFor("u1"), board.ID, "todo")

	ctx, cancel := context.WithTimeout(ctxFor("u1"), 2*time.Second)
	defer cancel()
	updates := s.repo.WatchCards(ctx, list.ID)

	rec := s.do(t, http.MethodPost, "/api/lists/"+list.ID+"/cards", tok, `{"title":"Plan","description":"agenda","dueDate":1717200000000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card = %d %s", rec.Code, rec.Body.String())
	}

	for {
		select {
		case u := <-updates:
			if u.Err != nil {
				t.Fatalf("watch: %v", u.Err)
			}
			if len(u.Value) == 0 {
				continue
			}
			card := u.Value[0]
			if card.Description == nil || *card.Description != "agenda" || card.DueDate == nil || *card.DueDate != 1717200000000 {
				t.Fatalf("first snapshot with the card = %+v", card)
			}
			return
		case <-ctx.Done():
			t.Fatal("card never delivered")
		}
	}
}

func TestRejectsUnsafePreferenceKeys(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1")
	if rec := s.do(t, http.MethodPost, "/api/session", tok, ""); rec.Code != http.StatusOK {
		t.Fatalf("session = %d", rec.Code)
	}
	for _, key := range []string{"a.b", "", "x~y", "*", "p/q", "[0]"} {
		body := `{"preferences":{"` + key + `":"v"}}`
		if rec := s.do(t, http.MethodPatch, "/api/profile", tok, body); rec.Code != http.StatusBadRequest {
			t.Fatalf("key %q = %d %s", key, rec.Code, rec.Body.String())
		}
	}
}

func TestChecklistAndComments(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1")
	ctx := ctxFor("u1")
	board, _ := s.repo.CreateBoard(ctx, models.Board{Name: "b"})
	list, _ := s.repo.CreateList(ctx, board.ID, "todo")
	card, _ := s.repo.CreateCard(ctx, models.Card{ListID: list.ID, Title: "t"})

	rec := s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/checklists", tok, `{"title":"Steps"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create checklist = %d %s", rec.Code, rec.Body.String())
	}
	cl := decodeBody[models.Checklist](t, rec)

	if rec := s.do(t, http.MethodPost, "/api/checklists/"+cl.ID+"/items", tok, `{"text":"draft"}`); rec.Code != http.StatusCreated {
		t.Fatalf("add item = %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/api/checklists/"+cl.ID+"/items", tok, `{"text":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank item = %d", rec.Code)
	}
	saved, _ := s.repo.GetChecklist(ctx, cl.ID)
	if len(saved.Items) != 1 {
		t.Fatalf("items = %+v", saved.Items)
	}
	itemID := saved.Items[0].ID

	if rec := s.do(t, http.MethodPatch, "/api/checklists/"+cl.ID+"/items/"+itemID, tok, `{"checked":true}`); rec.Code != http.StatusNoContent {
		t.Fatalf("check item = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPatch, "/api/checklists/"+cl.ID+"/items/nope", tok, `{"checked":true}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown item = %d", rec.Code)
	}
	saved, _ = s.repo.GetChecklist(ctx, cl.ID)
	if !saved.Items[0].Checked {
		t.Fatal("item not checked")
	}

	if rec := s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/comments", tok, `{"text":"ship it"}`); rec.Code != http.StatusCreated {
		t.Fatalf("comment = %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/api/cards/"+card.ID+"/comments", tok, `{"text":" "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank comment = %d", rec.Code)
	}

	if rec := s.do(t, http.MethodDelete, "/api/checklists/"+cl.ID+"/items/"+itemID, tok, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("remove item = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/checklists/"+cl.ID, tok, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete checklist = %d", rec.Code)
	}
}

func TestUploadBackgroundAndServeObject(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "u1")
	board, _ := s.repo.CreateBoard(ctxFor("u1"), models.Board{Name: "b"})

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "sky.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte("fake png bytes"))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/boards/"+board.ID+"/background", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d %s", rec.Code, rec.Body.String())
	}
	url := decodeBody[map[string]string](t, rec)["url"]
	prefix := "http://example.test/objects/" + repository.BackgroundPrefix
	if !strings.HasPrefix(url, prefix) || !strings.HasSuffix(url, "_sky.png") {
		t.Fatalf("url = %s", url)
	}

	updated, _ := s.repo.GetBoard(ctxFor("u1"), board.ID)
	if updated.BackgroundImageURL == nil || *updated.BackgroundImageURL != url {
		t.Fatalf("board background = %v", updated.BackgroundImageURL)
	}

	rec = s.do(t, http.MethodGet, strings.TrimPrefix(url, "http://example.test"), "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "fake png bytes" {
		t.Fatalf("serve object = %d %q", rec.Code, rec.Body.String())
	}

	if rec := s.do(t, http.MethodPost, "/api/boards/"+board.ID+"/background", tok, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file = %d", rec.Code)
	}
}

func TestPhotosUnavailable(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, http.MethodGet, "/api/photos", s.token(t, "u1"), ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("photos = %d", rec.Code)
	}
}

type streamedBoard struct {
	Phase string `json:"phase"`
	Data  struct {
		Board       models.Board             `json:"board"`
		Lists       []models.List            `json:"lists"`
		CardsByList map[string][]models.Card `json:"cardsByList"`
	} `json:"data"`
	Error string `json:"error"`
}

// nextFrame reads until the next "data:" event, skipping keep-alives.
func nextFrame(t *testing.T, r *bufio.Reader) streamedBoard {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		payload, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: ")
		if !ok {
			continue
		}
		var frame streamedBoard
		if err := sonic.UnmarshalString(payload, &frame); err != nil {
			t.Fatalf("decode frame %q: %v", payload, err)
		}
		return frame
	}
}

func TestBoardStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ctx := ctxFor("u1")
	board, _ := s.repo.CreateBoard(ctx, models.Board{Name: "live"})
	list, _ := s.repo.CreateList(ctx, board.ID, "todo")

	reqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/api/boards/"+board.ID+"/stream?token="+s.token(t, "u1"), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}
	r := bufio.NewReader(resp.Body)

	frame := nextFrame(t, r)
	for frame.Phase != "ready" {
		frame = nextFrame(t, r)
	}
	if frame.Data.Board.Name != "live" || len(frame.Data.Lists) != 1 {
		t.Fatalf("first ready frame = %+v", frame)
	}

	card, _ := s.repo.CreateCard(ctx, models.Card{ListID: list.ID, Title: "new"})
	for {
		frame = nextFrame(t, r)
		if cards := frame.Data.CardsByList[list.ID]; len(cards) == 1 && cards[0].ID == card.ID {
			break
		}
	}

	if err := s.repo.DeleteBoard(ctx, board.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for frame.Phase != "failed" {
		frame = nextFrame(t, r)
	}
	if frame.Error == "" {
		t.Fatal("failed frame without error")
	}
}
