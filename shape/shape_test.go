// SPDX-License-Identifier: Unlicense OR MIT

package shape

import "testing"

func TestGuessDirectionLatin(t *testing.T) {
	dir, ok := GuessDirection([]rune("hello"))
	if !ok {
		t.Fatal("expected a strong-direction character in \"hello\"")
	}
	if dir != LeftToRight {
		t.Fatalf("expected LeftToRight, got %v", dir)
	}
}

func TestGuessDirectionArabic(t *testing.T) {
	// "مرحبا" (Arabic for "hello") is strongly right-to-left.
	dir, ok := GuessDirection([]rune("مرحبا"))
	if !ok {
		t.Fatal("expected a strong-direction character in Arabic text")
	}
	if dir != RightToLeft {
		t.Fatalf("expected RightToLeft, got %v", dir)
	}
}

func TestGuessDirectionNeutral(t *testing.T) {
	_, ok := GuessDirection([]rune("123 !@#"))
	if ok {
		t.Fatal("expected no strong-direction character in purely neutral/number text")
	}
}
