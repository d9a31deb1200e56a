// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

type authorKind int

const (
	authorInvalid authorKind = iota
	authorUser
	authorGuest
)

// Author identifies who wrote an annotation. It is either an
// authenticated user id or a guest display name, never both. The zero
// value is invalid; use AuthenticatedAuthor or GuestAuthor.
type Author struct {
	kind      authorKind
	userID    int64
	guestName string
}

// AuthenticatedAuthor returns an Author backed by a user account.
func AuthenticatedAuthor(userID int64) Author {
	return Author{kind: authorUser, userID: userID}
}

// GuestAuthor returns an Author identified only by a display name.
func GuestAuthor(name string) Author {
	return Author{kind: authorGuest, guestName: name}
}

// UserID returns the user id and true when the author is authenticated.
func (a Author) UserID() (int64, bool) {
	return a.userID, a.kind == authorUser
}

// GuestName returns the guest name and true when the author is a guest.
func (a Author) GuestName() (string, bool) {
	return a.guestName, a.kind == authorGuest
}

// IsValid reports whether the author was built by a constructor.
func (a Author) IsValid() bool {
	return a.kind != authorInvalid
}

// DisplayName returns a human-readable name for either author kind.
func (a Author) DisplayName() string {
	switch a.kind {
	case authorGuest:
		return a.guestName
	case authorUser:
		return "user"
	default:
		return ""
	}
}

// Annotation is a visitor comment attached to one file on a share page.
// FileIndex is the zero-based position within the page's file list.
type Annotation struct {
	ID        int64     `json:"id"`
	PageID    int64     `json:"page_id"`
	FileIndex int64     `json:"file_index"`
	Author    Author    `json:"-"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
