// Package project is the registry of context projects.
//
// A context project is a named folder of reference material. Projects are
// identified by a UUID and a unique name, and may be disabled to exclude
// them from auto-sync without removing them.
//
// The Manager keeps projects in memory and, when opened with Open, persists
// every mutation to a JSON file:
//
//	{
//	  "version": 1,
//	  "projects": [
//	    {"id": "…", "name": "design-notes", "path": "/work/design-notes", "enabled": true, …}
//	  ]
//	}
//
// Writes replace the file atomically. Whether a project is git-backed is not
// recorded here; callers re-check the folder each time they need to know.
package project
