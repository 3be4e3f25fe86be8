// Package overlay manages writable overlay mounts for directories of a
// read-only installation.
//
// Every managed directory gets three storage locations under a fixed
// prefix, keyed by the escaped absolute path of the directory:
//
//	<prefix>/original/<escaped-path>   bind-mounted mirror of the original content
//	<prefix>/upper/<escaped-path>      writable layer receiving all changes
//	<prefix>/workdir/<escaped-path>    kernel-required scratch metadata
//
// The escaping scheme maps an absolute path to a single flat path segment
// and back: literal underscores are doubled, then slashes become single
// underscores. The layout and the escaping are an on-disk contract; an
// overlay created by one invocation must be discoverable and removable by
// a later one.
//
// The Manager never caches which overlays exist. Creation is idempotent
// (an already writable directory is left alone); deletion is not, and
// unmount failures are reported rather than swallowed. Active overlays are
// enumerated from the kernel mount table.
package overlay
