package sqlinline

const QEnsureJobStatusTable = `--sql d0ebb727-4e99-44eb-80a4-bd04773bf5a5
create table if not exists job_status (
    job_id        text primary key,
    status        text not null,
    result_url    text,
    error_kind    text,
    error_message text,
    updated_at    timestamptz not null default now()
);
`

const QMarkJobPending = `--sql 646f75c1-8939-488f-a3b6-02550f0f13d3
insert into job_status (job_id, status, updated_at)
values ($1, 'pending', now())
on conflict (job_id) do nothing;
`

// QPutJobTerminal upserts a terminal record and returns the columns that
// were stored before the write (all null when the row is new).
const QPutJobTerminal = `--sql e8bd15bc-7ff2-4d2a-9364-1879b387defe
with prev as (
    select status, result_url, error_kind, error_message
    from job_status
    where job_id = $1
    for update
)
insert into job_status (job_id, status, result_url, error_kind, error_message, updated_at)
values ($1, $2, nullif($3, ''), nullif($4, ''), nullif($5, ''), now())
on conflict (job_id) do update
set status = excluded.status,
    result_url = excluded.result_url,
    error_kind = excluded.error_kind,
    error_message = excluded.error_message,
    updated_at = now()
returning (select status from prev),
          (select coalesce(result_url, '') from prev),
          (select coalesce(error_kind, '') from prev),
          (select coalesce(error_message, '') from prev);
`

const QSelectJobStatus = `--sql b76a30a5-a636-4629-973a-d194b10f7bdc
select status,
       coalesce(result_url, ''),
       coalesce(error_kind, ''),
       coalesce(error_message, ''),
       updated_at
from job_status
where job_id = $1;
`
