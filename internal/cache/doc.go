// Package cache implements the two-tier (memory + disk) content cache. A Store
// owns one namespace directory under the base path (BasePath/<namespace>/<key>)
// and an in-process memory table; every call selects the tiers it touches with
// a Policy bitmask. Disk mutations are funnelled through a single writer
// goroutine per Store and use temp file + rename, so readers never observe a
// partially written entry. AssetCache layers decoded images on top of the raw
// byte store for the fetch coordinator and the HTTP front.
package cache
