package app

import "github.com/MrWong99/readalong/internal/session"

// Fanout forwards every notification to several observers in order. Members
// may implement only [session.Observer]; they then miss completions. Members
// with a SetLanguage(string) method follow language changes.
type Fanout []session.Observer

var _ Observer = Fanout(nil)

// Progress implements [session.Observer].
func (f Fanout) Progress(index, total int) {
	for _, o := range f {
		o.Progress(index, total)
	}
}

// Expect implements [session.Observer].
func (f Fanout) Expect(answer string, ok bool) {
	for _, o := range f {
		o.Expect(answer, ok)
	}
}

// Completed implements [Observer].
func (f Fanout) Completed(c Completion) {
	for _, o := range f {
		if co, ok := o.(Observer); ok {
			co.Completed(c)
		}
	}
}

// SetLanguage forwards a language change to members that follow it.
func (f Fanout) SetLanguage(lang string) {
	for _, o := range f {
		if ls, ok := o.(languageSetter); ok {
			ls.SetLanguage(lang)
		}
	}
}
