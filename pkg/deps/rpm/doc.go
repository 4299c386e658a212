// Package rpm implements the experimental rpm ecosystem.
//
// [RPM] reads rpms.lock.yaml (lockfileVersion 1) as produced by
// rpm-lockfile-prototype: binary packages, source packages and module
// metadata listed per architecture, each with a download URL, a repository
// id and usually a sha256 checksum.
//
// Package names and versions come from the "name-version-release.arch.rpm"
// file name convention. Fetched files are grouped by repository id, and
// Render writes a dnf .repo file per architecture that points at those
// directories.
package rpm
