/*
Package manifest normalizes every supported application-manifest input
form into a single Manifest record before any lifecycle logic runs.

Supported forms: a local apk file (the Android binary XML manifest is
extracted and decoded), a plain key/value mapping, and YAML/JSON
documents of the mapping shape. All forms enforce the same invariant: a
manifest without a package name is rejected at the boundary.
*/
package manifest
