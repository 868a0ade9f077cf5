// Package filter builds queries fluently.
//
// A Request is an immutable value: every combinator returns a new Request
// and never shares slices with its receiver, so a base request can be
// specialized along different branches safely.
//
//	base := filter.New("User").SuchThat(filter.Field[bool]("active").Equals(true))
//	admins := base.And(filter.Text("email").EndsWith("@corp.com", queryir.CaseInsensitive))
//	others := base.Excluding(filter.Field[string]("role").In("admin", "owner"))
//
// Clauses are queryir predicates. The typed helpers Field and Text build
// the common comparisons; ParseClause reads the rendered text form.
package filter
