package vfs

import "strings"

// Category containers are fixed-name folders that exist physically at a
// user's root. Devices address paths through them ("/NOTE/Note/…") while
// the web view hides them and lifts their children to the root.
const (
	ContainerNote     = "NOTE"
	ContainerDocument = "DOCUMENT"
)

// containerChildren maps each container to the well-known folders that
// live directly under it.
var containerChildren = map[string][]string{
	ContainerNote:     {"Note", "MyStyle"},
	ContainerDocument: {"Document"},
}

// rootDefaults are the plain folders created at the root alongside the
// containers when a user's tree is bootstrapped.
var rootDefaults = []string{"Export", "Inbox", "Screenshot"}

// containerOf returns the container holding the given well-known folder
// name, or "" if the name is not a container child.
func containerOf(name string) string {
	for container, children := range containerChildren {
		for _, child := range children {
			if child == name {
				return container
			}
		}
	}
	return ""
}

// DevicePath maps a flattened (web-view) path to its physical (device)
// form by prepending the owning container when the first segment is a
// well-known container child. Paths already physical pass through.
func DevicePath(p string) string {
	segments := SplitPath(p)
	if len(segments) == 0 {
		return "/"
	}
	if container := containerOf(segments[0]); container != "" {
		segments = append([]string{container}, segments...)
	}
	return "/" + strings.Join(segments, "/")
}

// isContainer reports whether name is a category container.
func isContainer(name string) bool {
	_, ok := containerChildren[name]
	return ok
}

// systemDirectories is the fixed set of names that cannot be renamed,
// moved or deleted.
var systemDirectories = func() map[string]bool {
	set := make(map[string]bool)
	for container, children := range containerChildren {
		set[container] = true
		for _, child := range children {
			set[child] = true
		}
	}
	for _, name := range rootDefaults {
		set[name] = true
	}
	return set
}()

// isSystemDirectory reports whether a folder node at the given depth is
// protected. Only folders at the root or directly under a container are
// system directories; a user folder that happens to be called "Note"
// deeper in the tree is fair game.
func isSystemDirectory(name string, parentIsRootOrContainer bool) bool {
	return parentIsRootOrContainer && systemDirectories[name]
}
