package views

import (
	"slices"
	"testing"

	"github.com/matheus3301/pchat/internal/feed"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/matheus3301/pchat/internal/tui/ui"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		w    feed.Wrapper
		want string
	}{
		{
			name: "text flattens newlines",
			w:    feed.Wrapper{Message: store.Message{Type: store.TypeText, Text: "hi\nthere"}},
			want: "hi there",
		},
		{
			name: "photo waiting for download",
			w: feed.Wrapper{
				Message:     store.Message{Type: store.TypePhoto, PhotoWidth: 640, PhotoHeight: 480},
				MediaStatus: feed.StatusManual,
			},
			want: "[photo 640x480] Enter to download",
		},
		{
			name: "playing audio",
			w: feed.Wrapper{
				Message:     store.Message{Type: store.TypeAudio, AudioDuration: 75},
				MediaStatus: feed.StatusSucceeded,
				AudioStatus: feed.AudioPlaying,
			},
			want: "[audio 1:15] Enter to stop",
		},
		{
			name: "video upload pending",
			w: feed.Wrapper{
				Message: store.Message{Type: store.TypeVideo, VideoDuration: 9, IsMediaQueued: true},
			},
			want: "[video 0:09] waiting...",
		},
		{
			name: "location",
			w: feed.Wrapper{
				Message:     store.Message{Type: store.TypeLocation, Latitude: 1.5, Longitude: -2.25},
				MediaStatus: feed.StatusSucceeded,
			},
			want: "[location 1.50000, -2.25000] Enter to show",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(&tt.w); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisplayEscapesTagsAndModifiers(t *testing.T) {
	got := display("[red]hi \U0001F44D\U0001F3FD")
	if got != "[red[]hi \U0001F44D" {
		t.Errorf("display() = %q", got)
	}
}

func TestForwardPickerSelection(t *testing.T) {
	persons := []store.Person{
		{ObjectID: "a", Fullname: "Ada"},
		{ObjectID: "b", Fullname: "Bob"},
		{ObjectID: "c", Fullname: "Cy"},
	}
	var done []string
	fp := NewForwardPicker(ui.DefaultTheme(), persons, func(ids []string) { done = ids })

	if fp.Done() {
		t.Fatal("an empty selection must not complete")
	}

	fp.Toggle(2)
	fp.Toggle(0)
	fp.Toggle(1)
	fp.Toggle(1)
	fp.Toggle(7)

	if !fp.Done() {
		t.Fatal("expected the selection to complete")
	}
	if want := []string{"a", "c"}; !slices.Equal(done, want) {
		t.Errorf("selection = %v, want %v", done, want)
	}
	if main, _ := fp.GetItemText(0); main != "[x[] Ada" {
		t.Errorf("label = %q", main)
	}
}
