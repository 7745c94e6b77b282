package roster

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"movetracker/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func newRosterApp(mock pgxmock.PgxPoolIface) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/roster"), NewService(mock, auth.NewIssuer("secret")), auth.AdminMiddleware("admin"))
	return app
}

func jsonRequest(method, path string, body any, admin bool) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer admin")
	}
	return req
}

func TestRosterHandlersCreateAndRegister(t *testing.T) {
	mock := newMock(t)
	app := newRosterApp(mock)

	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(pgxmock.AnyArg(), "Spring Walk").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resp, err := app.Test(jsonRequest(http.MethodPost, "/roster/events", map[string]string{"name": "Spring Walk"}, true))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create event status: %v %v", resp.StatusCode, err)
	}

	mock.ExpectQuery(`SELECT g.id`).
		WithArgs("g-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "distance", "id", "name", "distance"}).
			AddRow("g-1", "Blue", 0.0, "e-1", "Spring Walk", 0.0))
	mock.ExpectExec(`INSERT INTO participants`).
		WithArgs(pgxmock.AnyArg(), "alice", "g-1", "e-1", "IDLE").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resp, err = app.Test(jsonRequest(http.MethodPost, "/roster/groups/g-1/participants", map[string]string{"username": "alice"}, true))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status: %v %v", resp.StatusCode, err)
	}
	var reg Registration
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reg.Token == "" || reg.Participant.Username != "alice" {
		t.Fatalf("unexpected registration: %+v", reg)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRosterHandlersRequireAdmin(t *testing.T) {
	app := newRosterApp(newMock(t))

	resp, _ := app.Test(jsonRequest(http.MethodPost, "/roster/events", map[string]string{"name": "x"}, false))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", resp.StatusCode)
	}
}

func TestRosterHandlersValidate(t *testing.T) {
	app := newRosterApp(newMock(t))

	resp, _ := app.Test(jsonRequest(http.MethodPost, "/roster/events", map[string]string{"name": ""}, true))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
}

func TestRosterHandlersStandingsNotFound(t *testing.T) {
	mock := newMock(t)
	app := newRosterApp(mock)

	mock.ExpectQuery(`SELECT id, name, distance FROM events`).WithArgs("e-x").WillReturnError(pgx.ErrNoRows)

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/roster/events/e-x", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", resp.StatusCode)
	}
}

func TestRosterHandlersGroupStandings(t *testing.T) {
	mock := newMock(t)
	app := newRosterApp(mock)

	mock.ExpectQuery(`SELECT id, name, distance FROM groups WHERE id`).
		WithArgs("g-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "distance"}).AddRow("g-1", "Blue", 3.0))
	mock.ExpectQuery(`SELECT id, username, distance, state`).
		WithArgs("g-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "distance", "state"}))

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/roster/groups/g-1", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok, got %d", resp.StatusCode)
	}
	var st GroupStandings
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Group.Distance != 3 || st.Participants == nil {
		t.Fatalf("unexpected standings: %+v", st)
	}
}
