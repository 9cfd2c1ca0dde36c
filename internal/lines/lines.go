// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package lines provides the line-source policies a relay can contribute
// from: loop through a local poem, emit a sequence once, or never
// originate at all.
package lines

import (
	"sync"

	"github.com/lineswarm/relay/core/mailroom"
)

// PoemLoop cycles through a fixed poem forever, one line per period. This
// is the default production line source.
type PoemLoop struct {
	mu     sync.Mutex
	author string
	poem   []string
	next   int
}

// NewPoemLoop creates a looping line source. An empty poem never produces
// a line.
func NewPoemLoop(author string, poem []string) *PoemLoop {
	return &PoemLoop{author: author, poem: poem}
}

// GetNextLine returns the next line of the poem, wrapping at the end.
func (p *PoemLoop) GetNextLine() (mailroom.NextLine, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.poem) == 0 {
		return mailroom.NextLine{}, false
	}

	line := p.poem[p.next]
	p.next = (p.next + 1) % len(p.poem)
	return mailroom.NextLine{Line: line, Author: p.author}, true
}

// Once emits each line of a sequence exactly once, then stops producing.
// Useful for relays that contribute a finite text and fall back to
// forwarding only.
type Once struct {
	mu     sync.Mutex
	author string
	poem   []string
	next   int
}

// NewOnce creates a run-once line source.
func NewOnce(author string, poem []string) *Once {
	return &Once{author: author, poem: poem}
}

// GetNextLine returns the next unemitted line, or false once the sequence
// is exhausted.
func (o *Once) GetNextLine() (mailroom.NextLine, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.next >= len(o.poem) {
		return mailroom.NextLine{}, false
	}

	line := o.poem[o.next]
	o.next++
	return mailroom.NextLine{Line: line, Author: o.author}, true
}

// Null never produces a line: the relay forwards but does not originate.
type Null struct{}

// GetNextLine always reports no line.
func (Null) GetNextLine() (mailroom.NextLine, bool) {
	return mailroom.NextLine{}, false
}
