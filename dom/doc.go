// Live HTML document with mutation observers.
//
// A Document owns a `golang.org/x/net/html` tree and serializes every change to it: host page code and moderation code both mutate the tree through `Document.Update`, and each update's child-list changes are delivered as one batch of MutationRecords to the registered observers before the update returns. This mirrors how a browser MutationObserver behaves (batches delivered in mutation order, callbacks run to completion, never two batches at once), which is the contract the rest of this module is written against.
//
// Observer callbacks run while the document lock is held. They get read-only access to the tree and must not call `Update` or `Dispatch`; anything asynchronous should re-enter the document through `Update` from its own goroutine.
package dom
