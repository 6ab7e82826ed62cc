package models_test

import (
	"testing"

	"nhexserver/models"
	"nhexserver/testutil"
)

func TestDefaultBoard(t *testing.T) {
	db := testutil.NewDB(t)

	board, err := models.DefaultBoard(db)
	if err != nil {
		t.Fatal(err)
	}
	if board != nil {
		t.Errorf("empty table: got %+v, want nil", board)
	}

	second := &models.Board{Name: "second", Image: "boards/2.png", DefaultPriority: 2}
	first := &models.Board{Name: "first", Image: "boards/1.png", DefaultPriority: 1}
	for _, b := range []*models.Board{second, first} {
		if err := db.Create(b).Error; err != nil {
			t.Fatal(err)
		}
	}

	board, err = models.DefaultBoard(db)
	if err != nil {
		t.Fatal(err)
	}
	if board == nil || board.ID != first.ID {
		t.Errorf("default board = %+v, want %s", board, first.Name)
	}
}

func TestLinkMyOrderAutoAssign(t *testing.T) {
	db := testutil.NewDB(t)
	first := &models.Link{Name: "a", URL: "https://example.com/a"}
	second := &models.Link{Name: "b", URL: "https://example.com/b"}
	for _, l := range []*models.Link{first, second} {
		if err := db.Create(l).Error; err != nil {
			t.Fatal(err)
		}
	}
	if second.MyOrder != first.MyOrder+1 {
		t.Errorf("second.MyOrder = %d, want %d", second.MyOrder, first.MyOrder+1)
	}
}

func TestFooterLinkValidate(t *testing.T) {
	valid := []string{
		"https://example.com/about",
		"http://example.com",
		"/local/page/",
	}
	for _, url := range valid {
		l := models.FooterLink{Name: "x", URL: url}
		if err := l.Validate(); err != nil {
			t.Errorf("URL %q rejected: %v", url, err)
		}
	}
	invalid := []string{"", "not a url", "relative/path"}
	for _, url := range invalid {
		l := models.FooterLink{Name: "x", URL: url}
		if err := l.Validate(); err == nil {
			t.Errorf("URL %q accepted, want error", url)
		}
	}
}
