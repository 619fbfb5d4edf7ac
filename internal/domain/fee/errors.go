package fee

import "errors"

var ErrInvalidRole = errors.New("role must be merchant or rider")
