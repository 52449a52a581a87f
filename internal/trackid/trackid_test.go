package trackid

import "testing"

func TestRoundTripFormat(t *testing.T) {
	cases := []ID{
		NewSpotify("6rqhFgbbKwnb9MLmUQDhG6"),
		NewYouTube("dQw4w9WgXcQ"),
	}

	for _, tc := range cases {
		got, err := Parse(tc.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.String(), err)
		}
		if !got.Equal(tc) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, tc)
		}
	}
}

func TestRoundTripURL(t *testing.T) {
	cases := []ID{
		NewSpotify("6rqhFgbbKwnb9MLmUQDhG6"),
		NewYouTube("dQw4w9WgXcQ"),
	}

	for _, tc := range cases {
		got, err := Parse(tc.URL())
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.URL(), err)
		}
		if !got.Equal(tc) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, tc)
		}
	}
}

func TestParseYouTubeWatchURL(t *testing.T) {
	got, err := Parse("https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=abc")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := NewYouTube("dQw4w9WgXcQ")
	if !got.Equal(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("not a track id"); err == nil {
		t.Fatal("expected error for unrecognized input")
	}
}

func TestStringFormat(t *testing.T) {
	if got, want := NewSpotify("abc").String(), "spotify:track:abc"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got, want := NewYouTube("abc").String(), "youtube:video:abc"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
