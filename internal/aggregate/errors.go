package aggregate

import "errors"

// errNoMasks is returned by Plurality when Sum2 closes with no masks
// reported at all, which should only happen if SumDict was empty.
var errNoMasks = errors.New("aggregate: no masks to select a plurality from")
