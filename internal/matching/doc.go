// Package matching scores catalog search results against a library season.
//
// [Normalize] and [EqualNormalized] compare titles ignoring colons, spaces and case.
// [Score] rates one [models.CatalogEntry] against a [models.LibrarySeason]:
//
//   - +100 when the entry's episode count equals the season's episode count
//   - +50 per english or romaji title equal to a season title, +10 per equal synonym
//   - +50 for an entry without a prequel when scoring a first season
//
// Season titles are "{series} season {n}" and "{series} {n}"; a first season uses the bare series title
// in place of the first one.
//
// [FindBestMatch] keeps candidates scoring above zero and returns the highest, resolving ties to the
// last candidate in input order.
package matching
