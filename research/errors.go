package research

import "errors"

// ErrNoSubjects is returned by RunCycle when the subject lister is not
// configured.
var ErrNoSubjects = errors.New("research: no subject lister configured")
