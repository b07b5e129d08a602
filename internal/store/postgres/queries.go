package postgres

const jobColumns = `
    id, customer_id, status, due, immediate, from_language_id, duration,
    gender, certified, job_type,
    customer_phone_allowed, customer_physical_allowed, town,
    admin_comments, reference, flagged, override_email, session_time,
    created_at, will_expire_at, end_at, withdraw_at,
    cust_16_hour_email_sent, cust_48_hour_email_sent`

const queryGetJobByID = `
SELECT` + jobColumns + `
FROM jobs
WHERE id = $1
`

const queryInsertJob = `
INSERT INTO jobs (
    id, customer_id, status, due, immediate, from_language_id, duration,
    gender, certified, job_type,
    customer_phone_allowed, customer_physical_allowed, town,
    admin_comments, reference, flagged, override_email, session_time,
    created_at, will_expire_at, end_at, withdraw_at,
    cust_16_hour_email_sent, cust_48_hour_email_sent
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
`

const queryUpdateJob = `
UPDATE jobs
SET customer_id = $2, status = $3, due = $4, immediate = $5,
    from_language_id = $6, duration = $7,
    gender = $8, certified = $9, job_type = $10,
    customer_phone_allowed = $11, customer_physical_allowed = $12, town = $13,
    admin_comments = $14, reference = $15, flagged = $16, override_email = $17,
    session_time = $18, created_at = $19, will_expire_at = $20,
    end_at = $21, withdraw_at = $22,
    cust_16_hour_email_sent = $23, cust_48_hour_email_sent = $24,
    session_remind_sent = (CASE WHEN $3 = 'pending' THEN false ELSE session_remind_sent END)
WHERE id = $1
`

const queryCompareAndSwapStatus = `
UPDATE jobs
SET status = $3
WHERE id = $1
  AND status = $2
`

const queryPendingJobsByType = `
SELECT` + jobColumns + `
FROM jobs
WHERE status = 'pending'
  AND job_type = $1
ORDER BY due ASC
`

const queryExpirePendingJobs = `
WITH expired AS (
    SELECT id AS job_id FROM jobs
    WHERE status = 'pending'
      AND will_expire_at <= $1
    ORDER BY will_expire_at ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
UPDATE jobs
SET status = 'timedout'
FROM expired
WHERE jobs.id = expired.job_id
RETURNING` + jobColumns + `
`

const queryJobsDueForReminder = `
SELECT` + jobColumns + `
FROM jobs
WHERE status IN ('assigned', 'started')
  AND due >= $1
  AND due <= $2
  AND session_remind_sent = false
ORDER BY due ASC
LIMIT $3
`

const queryMarkReminderSent = `
UPDATE jobs
SET session_remind_sent = true
WHERE id = $1
`

const queryInsertAssignment = `
INSERT INTO assignments (id, job_id, translator_id, assigned_at, cancel_at, completed_at, completed_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryCloseAssignment = `
UPDATE assignments
SET cancel_at = $2
WHERE id = $1
  AND cancel_at IS NULL
  AND completed_at IS NULL
`

const queryCompleteAssignment = `
UPDATE assignments
SET completed_at = $2, completed_by = $3
WHERE id = $1
  AND completed_at IS NULL
`

const assignmentColumns = `
    id, job_id, translator_id, assigned_at, cancel_at, completed_at, completed_by`

const queryActiveAssignment = `
SELECT` + assignmentColumns + `
FROM assignments
WHERE job_id = $1
  AND cancel_at IS NULL
  AND completed_at IS NULL
ORDER BY assigned_at DESC
LIMIT 1
`

const queryLatestAssignment = `
SELECT` + assignmentColumns + `
FROM assignments
WHERE job_id = $1
ORDER BY assigned_at DESC
LIMIT 1
`

const queryTranslatorBusyAt = `
SELECT EXISTS (
    SELECT 1
    FROM assignments a
    JOIN jobs j ON j.id = a.job_id
    WHERE a.translator_id = $1
      AND a.cancel_at IS NULL
      AND a.completed_at IS NULL
      AND date_trunc('minute', j.due) = date_trunc('minute', $2::timestamptz)
)
`

const queryGetCustomerByID = `
SELECT id, name, email, town, consumer_type
FROM customers
WHERE id = $1
`

const translatorColumns = `
    t.id, t.name, t.email, t.mobile, t.type, t.level, t.gender, t.town,
    t.no_push, t.no_night_push, t.no_emergency_push, t.no_directed_jobs,
    COALESCE(array_agg(tl.language_id::text) FILTER (WHERE tl.language_id IS NOT NULL), '{}')`

const translatorGroupBy = `
GROUP BY t.id, t.name, t.email, t.mobile, t.type, t.level, t.gender, t.town,
    t.no_push, t.no_night_push, t.no_emergency_push, t.no_directed_jobs`

const queryGetTranslatorByID = `
SELECT` + translatorColumns + `
FROM translators t
LEFT JOIN translator_languages tl ON tl.translator_id = t.id
WHERE t.id = $1
` + translatorGroupBy

const queryGetTranslatorByEmail = `
SELECT` + translatorColumns + `
FROM translators t
LEFT JOIN translator_languages tl ON tl.translator_id = t.id
WHERE t.email = $1
` + translatorGroupBy

const queryActiveTranslators = `
SELECT` + translatorColumns + `
FROM translators t
LEFT JOIN translator_languages tl ON tl.translator_id = t.id
WHERE t.active = true
` + translatorGroupBy + `
ORDER BY t.id
`

const queryLanguageName = `
SELECT name FROM languages WHERE id = $1
`

const queryIsBlacklisted = `
SELECT EXISTS (
    SELECT 1 FROM blacklist
    WHERE customer_id = $1 AND translator_id = $2
)
`

const querySharesTown = `
SELECT EXISTS (
    SELECT 1
    FROM customers c
    JOIN translators t ON lower(t.town) = lower(c.town)
    WHERE c.id = $1 AND t.id = $2 AND c.town <> ''
)
`

const queryDirectedTo = `
SELECT translator_id FROM directed_offers WHERE job_id = $1
`
