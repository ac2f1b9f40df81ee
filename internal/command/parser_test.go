package command

import (
	"reflect"
	"testing"

	"albumline/internal/domain"
)

func TestParseSingleCommand(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []domain.StatusCommand
	}{
		{"code first", "AR-101 production", []domain.StatusCommand{{AlbumCode: "AR-101", StatusCode: "production"}}},
		{"status first", "sent AR-101", []domain.StatusCommand{{AlbumCode: "AR-101", StatusCode: "sent"}}},
		{"lowercase code", "ar-101 accepted", []domain.StatusCommand{{AlbumCode: "AR-101", StatusCode: "accepted"}}},
		{"alias", "AR-101 prod is wrong, uploaded", []domain.StatusCommand{{AlbumCode: "AR-101", StatusCode: "upload"}}},
		{"russian alias", "ФТ-23 отправлен", []domain.StatusCommand{{AlbumCode: "ФТ-23", StatusCode: "sent"}}},
		{"multi word alias", "AR-101 в производстве", []domain.StatusCommand{{AlbumCode: "AR-101", StatusCode: "production"}}},
		{"filler between", "коллеги, AR-101 уже в печати!", []domain.StatusCommand{{AlbumCode: "AR-101", StatusCode: "production"}}},
		{"punctuation around code", "(AR-101) принят.", []domain.StatusCommand{{AlbumCode: "AR-101", StatusCode: "accepted"}}},
		{"no command", "доброе утро, как дела?", nil},
		{"code without status", "AR-101 посмотрите пожалуйста", nil},
		{"status without code", "все отправлено", nil},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(tc.text)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Parse(%q) = %+v, want %+v", tc.text, got, tc.want)
			}
		})
	}
}

func TestParseMultipleCommands(t *testing.T) {
	got := Parse("AR-101 отправлен, КР-5 в производстве, ЭС-12 wait")
	want := []domain.StatusCommand{
		{AlbumCode: "AR-101", StatusCode: "sent"},
		{AlbumCode: "КР-5", StatusCode: "production"},
		{AlbumCode: "ЭС-12", StatusCode: "waiting"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse = %+v, want %+v", got, want)
	}
}

func TestParsePathAttachesToPrecedingCommand(t *testing.T) {
	got := Parse(`AR-101 залит \\storage\tower\AR-101`)
	want := []domain.StatusCommand{{AlbumCode: "AR-101", StatusCode: "upload", LocalPath: `\\storage\tower\AR-101`}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse = %+v, want %+v", got, want)
	}

	// A path with no completed command before it is dropped.
	if got := Parse(`/mnt/albums/AR-101 посмотрите`); got != nil {
		t.Fatalf("stray path produced %+v", got)
	}
}

func TestParsePathKeptVerbatim(t *testing.T) {
	got := Parse("КР-5 upload //srv/Проекты/КР-5/выпуск и ещё AR-1 sent")
	if len(got) != 2 {
		t.Fatalf("commands = %+v", got)
	}
	if got[0].LocalPath != "//srv/Проекты/КР-5/выпуск" {
		t.Fatalf("path = %q", got[0].LocalPath)
	}
	if got[1].LocalPath != "" {
		t.Fatalf("second command picked up a path: %+v", got[1])
	}
}
