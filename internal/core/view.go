package core

// View is the filter scope for listing and summarizing: either one
// person's transactions or the shared household pool. It replaces
// string comparison against the "shared" sentinel at call sites.
type View struct {
	person string
	shared bool
}

func SharedView() View { return View{shared: true} }

func PersonalView(person string) View { return View{person: person} }

// ParseView interprets the wire value: the shared sentinel selects the
// shared pool, anything else is a personal view.
func ParseView(s string) (View, error) {
	if s == "" {
		return View{}, ErrEmptyPerson
	}
	if s == SharedPerson {
		return SharedView(), nil
	}
	return PersonalView(s), nil
}

func (v View) IsShared() bool { return v.shared }

// Matches reports whether a transaction owned by person belongs to the
// view.
func (v View) Matches(person string) bool {
	if v.shared {
		return person == SharedPerson
	}
	return person == v.person
}

func (v View) String() string {
	if v.shared {
		return SharedPerson
	}
	return v.person
}
