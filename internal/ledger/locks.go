package ledger

// lock blocks until domain is held and returns its release function. Every
// read-modify-write of a domain's records runs under it.
func (l *Ledger) lock(domain string) func() {
	l.locks.Lock(domain)
	return func() {
		_ = l.locks.Unlock(domain)
	}
}
