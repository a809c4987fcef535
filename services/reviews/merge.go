package reviews

// MergeLocalFirst overlays the caller's own record onto a fetched page. The
// local record is always authoritative and always first; any copy of it in
// the remote page (matched by identity) is dropped so the row never appears
// twice. A nil local returns the remote page unchanged.
func MergeLocalFirst[T any, K comparable](local *T, remote []T, identity func(T) K) []T {
	if local == nil {
		return remote
	}
	localID := identity(*local)
	out := make([]T, 0, len(remote)+1)
	out = append(out, *local)
	for _, r := range remote {
		if identity(r) == localID {
			continue
		}
		out = append(out, r)
	}
	return out
}
