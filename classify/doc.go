// Classification dispatch: sends normalized post text to the external binary classifier and maps its answer to a moderation Verdict.
//
// One request per unit, no batching, no retries. Failures (network errors, non-2xx statuses, malformed bodies) are logged and returned as errors; callers treat them as "not flagged". The package also provides Pending, a single-assignment future used wherever a verdict arrives asynchronously.
package classify
